package audiocapture

// platformBackends returns the capture backends available on this
// platform, in acquisition preference order (loopback before
// microphone). The portable build ships none; platform builds register
// their implementations here. Tests inject fakes through Config.
func platformBackends() []backend {
	return nil
}
