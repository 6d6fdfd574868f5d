package apc

// Payload data_type enum.
const (
	DataBytes uint8 = 0x00
	DataJSON uint8 = 0x01
	DataFiles uint8 = 0x02
)

func DataTypeName(dt uint8) string {
	switch dt {
	case DataBytes:
		return "bytes"
	case DataJSON:
		return "json"
	case DataFiles:
		return "files"
	default:
		return "unknown"
	}
}

func IsValidDataType(dt uint8) bool {
	return dt == DataBytes || dt == DataJSON || dt == DataFiles
}
