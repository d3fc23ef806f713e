package psi

const (
	descriptorTagCA         = 0x09
	descriptorTagScrambling = 0x65
)

// CADescriptor builds a CA_descriptor (tag 0x09): CA_system_id, ECM_PID, and
// opaque private_data, per spec.md §4.5.4. Placed at program level by
// default, or duplicated on each scrambled component with --component-level.
func CADescriptor(caSystemID uint16, ecmPID uint16, privateData []byte) []byte {
	d := make([]byte, 6+len(privateData))
	d[0] = descriptorTagCA
	d[1] = byte(4 + len(privateData))
	d[2] = byte(caSystemID >> 8)
	d[3] = byte(caSystemID)
	d[4] = byte(ecmPID>>8) & 0x1F
	d[5] = byte(ecmPID)
	copy(d[6:], privateData)
	return d
}

// ScramblingDescriptor builds a scrambling_descriptor (tag 0x65) carrying
// the one-byte scrambling_mode, emitted when the scheme is not DVB-CSA2 (the
// implicit default that needs no descriptor).
func ScramblingDescriptor(scramblingMode byte) []byte {
	return []byte{descriptorTagScrambling, 0x01, scramblingMode}
}
