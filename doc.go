/*
Package cvpipe shares a single capture device between computer vision
modules and application.

# Concept

Every module declares configs it supports: which streams and motion
sensors it needs, at what resolution and rate. Pipeline negotiates a
single device config that satisfies all of them and optional user
restriction. Then it starts the device and delivers every sample set to
each module and to the application callback.

Pipeline has three states:

	Unconfigured - modules can be added, no device is bound;
	Configured - device is bound and every module has its config;
	Streaming - device delivers sample sets.

Configure moves pipeline from Unconfigured to Configured. Start moves it
to Streaming, configuring it first if needed. Stop returns it to
Configured. Reset returns it to Unconfigured from any state.

# Negotiation

Candidate device configs are generated as combinations of one config of
each module plus the restriction. Candidates are tried in order: the first
one that device can open and every module accepts is committed. If no
candidate is accepted, ErrMatchNotFound is returned.

# Delivery

Modules that declared async processing receive sets on their own
goroutines through bounded queues. Other modules and the application
callback receive sets on the device goroutine, so they must return
quickly. Sets are shared between consumers and must not be modified.
Consumer must retain a set if it's used after processing returns.

# Teardown

Stop and Reset close consumers, flush modules and only then deactivate the
device. When device is deactivated, no sample set is held by the pipeline
or its modules.
*/
package cvpipe
