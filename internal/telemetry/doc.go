// Package telemetry defines the plant pot's sensor data: the Sample a
// transport receives, the merged Reading kept by the connection controller,
// the emotion derived from a reading, and the pseudo-random Generator that
// stands in for real hardware.
//
// Samples may be partial. Only the fields a device actually sent are set,
// which is why Sample uses pointers and Reading does not:
//
//	r := telemetry.DefaultReading("demo-device")
//	r = r.Merge(sample) // fields missing from sample keep their prior value
//	fmt.Println(r.Emotion())
package telemetry
