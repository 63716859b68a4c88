// Package vad implements voice activity detection for a live microphone
// stream and the recording state machine that turns detected speech into
// finished clips.
//
// Frames flow one way: a Microphone delivers PCM frames, a Meter reduces each
// frame to a Loudness sample, IsSoundPresent classifies it against the
// configured threshold, and the Session advances its state machine:
//
//	Idle --enable--> Listening --sound--> Detecting --delay--> Recording
//	Recording --silence|max duration--> Listening (clip submitted) or
//	                                    Discarding --> Listening
//	any --disable--> Idle
//
// While Recording, frames are buffered by a Sink. When recording stops, the
// clip is either discarded (empty, or shorter than MinSpeechDuration) or
// handed to a pipeline.Adapter on its own goroutine. The Session returns to
// Listening immediately and never waits for the adapter.
//
// All events (frames, timer fires, Enable, Disable) are serialized by one
// mutex. Timers are armed through a clock.Clock and carry a per-arm token, so
// a timer that fires after being cancelled, or after the Session was torn
// down, is ignored.
package vad
