package wire

import "encoding/binary"

func init() {
	registerOption(OptionSolMaxRT, MultiplicityOne, decodeSolMaxRT)
	registerOption(OptionInfMaxRT, MultiplicityOne, decodeInfMaxRT)
}

// OptSolMaxRT overrides SOL_MAX_RT on the client, RFC 8415 section
// 21.24 (originally RFC 7083).
type OptSolMaxRT struct{ Seconds uint32 }

func (o *OptSolMaxRT) Code() OptionCode { return OptionSolMaxRT }
func (o *OptSolMaxRT) ToBytes() []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, o.Seconds)
	return b
}

func decodeSolMaxRT(body []byte, _ int) (Option, error) {
	if len(body) != 4 {
		return nil, codecErr(ErrKindBadLength, "sol-max-rt must be 4 bytes")
	}
	v := binary.BigEndian.Uint32(body)
	if v < 60 || v > 86400 {
		return nil, codecErr(ErrKindBadDiscriminant, "sol-max-rt out of RFC 7083 range")
	}
	return &OptSolMaxRT{Seconds: v}, nil
}

// OptInfMaxRT overrides INF_MAX_RT on the client, RFC 7083.
type OptInfMaxRT struct{ Seconds uint32 }

func (o *OptInfMaxRT) Code() OptionCode { return OptionInfMaxRT }
func (o *OptInfMaxRT) ToBytes() []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, o.Seconds)
	return b
}

func decodeInfMaxRT(body []byte, _ int) (Option, error) {
	if len(body) != 4 {
		return nil, codecErr(ErrKindBadLength, "inf-max-rt must be 4 bytes")
	}
	v := binary.BigEndian.Uint32(body)
	if v < 60 || v > 86400 {
		return nil, codecErr(ErrKindBadDiscriminant, "inf-max-rt out of RFC 7083 range")
	}
	return &OptInfMaxRT{Seconds: v}, nil
}
