// Package telemetry publishes cache health without touching the hot path.
//
// A Sampler snapshots pool and graph-cache state on a fixed cadence and
// publishes onto a Bus; subscribers receive snapshots over channels with
// drop-new semantics (a slow consumer loses samples, never stalls the
// sampler). The MQTT Emitter bridges the bus onto the sensor's broker next
// to its other health topics.
//
// Drops are expected and healthy here: a stats sample is only worth
// delivering while it is current.
package telemetry
