package event

import "github.com/radkum/redr/digest"

// RegType mirrors the subset of Windows registry value types this engine
// cares about when deciding whether Data can be rendered as a string.
type RegType uint32

// Recognized registry value types. Only the string-shaped ones participate
// in attribute hashing of Data (see IsString).
const (
	RegNone                     RegType = 0
	RegSZ                       RegType = 1
	RegExpandSZ                 RegType = 2
	RegBinary                   RegType = 3
	RegDWord                    RegType = 4
	RegDWordBigEndian           RegType = 5
	RegLink                     RegType = 6
	RegMultiSZ                  RegType = 7
	RegResourceList             RegType = 8
	RegFullResourceDescriptor   RegType = 9
	RegResourceRequirementsList RegType = 10
	RegQWord                    RegType = 11
)

// IsString reports whether values of this type should be decoded and
// hashed as text. Only REG_SZ, REG_EXPAND_SZ and REG_LINK qualify;
// REG_BINARY and the rest never contribute their Data to the attribute
// hash, even when the rule author supplied one.
func (t RegType) IsString() bool {
	switch t {
	case RegSZ, RegExpandSZ, RegLink:
		return true
	default:
		return false
	}
}

// RegistrySetValue is delivered when a process writes a registry value.
type RegistrySetValue struct {
	Pid       uint32
	Tid       uint32
	KeyName   string
	ValueName string
	DataType  uint32
	Data      []byte
}

const registrySetValueName = "RegSetValue"

func (RegistrySetValue) Class() Class { return ClassRegistrySetValue }

func (e RegistrySetValue) Payload() []byte {
	out := make([]byte, 0, 64)
	out = append(out, putU32(e.Pid)...)
	out = append(out, putU32(e.Tid)...)
	out = append(out, encodeString(e.KeyName)...)
	out = append(out, encodeString(e.ValueName)...)
	out = append(out, putU32(e.DataType)...)
	out = append(out, encodeBytes(e.Data)...)
	return out
}

func decodeRegistrySetValue(b []byte) (RegistrySetValue, error) {
	pid, err := getU32(b)
	if err != nil {
		return RegistrySetValue{}, err
	}
	b = b[4:]

	tid, err := getU32(b)
	if err != nil {
		return RegistrySetValue{}, err
	}
	b = b[4:]

	keyName, n, err := decodeString(b)
	if err != nil {
		return RegistrySetValue{}, err
	}
	b = b[n:]

	valueName, n, err := decodeString(b)
	if err != nil {
		return RegistrySetValue{}, err
	}
	b = b[n:]

	dataType, err := getU32(b)
	if err != nil {
		return RegistrySetValue{}, err
	}
	b = b[4:]

	data, _, err := decodeBytes(b)
	if err != nil {
		return RegistrySetValue{}, err
	}

	return RegistrySetValue{
		Pid:       pid,
		Tid:       tid,
		KeyName:   keyName,
		ValueName: valueName,
		DataType:  dataType,
		Data:      data,
	}, nil
}

// DataAsString decodes Data as UTF-16LE up to the first NUL code unit,
// low-byte-casting each unit to an ASCII byte, but only when DataType
// names a string-shaped registry type. It reports ok=false otherwise, or
// when the decoded string is empty.
func (e RegistrySetValue) DataAsString() (s string, ok bool) {
	if !RegType(e.DataType).IsString() {
		return "", false
	}

	buf := make([]byte, 0, len(e.Data)/2)
	for i := 0; i+1 < len(e.Data); i += 2 {
		unit := uint16(e.Data[i]) | uint16(e.Data[i+1])<<8
		if unit == 0 {
			break
		}
		buf = append(buf, byte(unit))
	}
	if len(buf) == 0 {
		return "", false
	}
	return string(buf), true
}

func (e RegistrySetValue) HashMembers() []digest.Sha256Buf {
	var out []digest.Sha256Buf
	if e.Pid != 0 {
		out = append(out, digest.AttrHash(registrySetValueName, "pid", e.Pid))
	}
	if e.Tid != 0 {
		out = append(out, digest.AttrHash(registrySetValueName, "tid", e.Tid))
	}
	if e.KeyName != "" {
		out = append(out, digest.AttrHash(registrySetValueName, "key_name", e.KeyName))
	}
	if e.ValueName != "" {
		out = append(out, digest.AttrHash(registrySetValueName, "value_name", e.ValueName))
	}
	if e.DataType != 0 {
		out = append(out, digest.AttrHash(registrySetValueName, "data_type", e.DataType))
	}
	if s, ok := e.DataAsString(); ok {
		out = append(out, digest.AttrHash(registrySetValueName, "data", s))
	}
	return out
}
