package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestInit(t *testing.T) {
	root := newRootCommand(&bytes.Buffer{})
	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	assert.Contains(t, names, "run")
	assert.Contains(t, names, "default-config")
}

func TestDefaultConfig(t *testing.T) {
	var out bytes.Buffer
	root := newRootCommand(&out)
	root.SetArgs([]string{"default-config"})
	require.NoError(t, root.Execute())

	var c ConfigSettings
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &c))
	assert.Len(t, c.Streams, 5)
	assert.Equal(t, StreamSettings{Width: 640, Height: 480, FPS: 30}, c.Streams["depth"])
	assert.Equal(t, MotionSettings{Rate: 250}, c.Motions["accel"])
	assert.Equal(t, MotionSettings{Rate: 200}, c.Motions["gyro"])
}

const runConfig = `
queuesize: 2
devices:
  - name: cam0
    streams: [color]
  - name: cam1
    maxframerate: 60
restriction:
  timesync: accept-unmatched
modules:
  - name: tracker
    load: 2ms
    history: 2
    configs:
      - async: true
        streams:
          depth: {width: 16, height: 16, fps: 60}
      - streams:
          depth: {width: 8, height: 8}
  - name: imu
    configs:
      - motions:
          gyro: {}
`

func TestRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cvpipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte(runConfig), 0o600))

	var out bytes.Buffer
	root := newRootCommand(&out)
	root.SetArgs([]string{"run", "--config", path, "--duration", "200ms"})
	require.NoError(t, root.Execute())

	var r Report
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &r))
	assert.Equal(t, "cam1", r.Device.Device)
	assert.Equal(t, StreamSettings{Width: 16, Height: 16, FPS: 60}, r.Device.Streams["depth"])
	assert.Positive(t, r.Sets)
	require.Len(t, r.Modules, 2)
	assert.Equal(t, "tracker", r.Modules[0].Name)
	assert.Positive(t, r.Modules[0].Processed)
	assert.Equal(t, "imu", r.Modules[1].Name)
	assert.Equal(t, MotionSettings{Rate: 200}, r.Modules[1].Config.Motions["gyro"])
}

func TestRunInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cvpipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte("modules:\n  - name: m\n    configs:\n      - streams:\n          thermal: {width: 1, height: 1}\n"), 0o600))

	root := newRootCommand(&bytes.Buffer{})
	root.SetArgs([]string{"run", "-c", path})
	assert.ErrorContains(t, root.Execute(), "thermal")
}

func TestRunInvalidRate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cvpipe.yaml")
	require.NoError(t, os.WriteFile(path, []byte("modules:\n  - name: m\n    configs:\n      - streams:\n          depth: {width: 4, height: 4, fps: 2000000000}\n"), 0o600))

	root := newRootCommand(&bytes.Buffer{})
	root.SetArgs([]string{"run", "-c", path})
	assert.ErrorContains(t, root.Execute(), "match not found")
}
