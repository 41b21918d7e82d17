package wire

import "encoding/binary"

// OptionCode is the 16-bit DHCPv6 option code, per RFC 8415 section 21.1.
type OptionCode uint16

const (
	OptionClientID              OptionCode = 1
	OptionServerID              OptionCode = 2
	OptionIANA                  OptionCode = 3
	OptionIATA                  OptionCode = 4
	OptionIAAddr                OptionCode = 5
	OptionOptionRequest         OptionCode = 6
	OptionPreference            OptionCode = 7
	OptionElapsedTime           OptionCode = 8
	OptionRelayMessage          OptionCode = 9
	OptionAuth                  OptionCode = 11
	OptionUnicast               OptionCode = 12
	OptionStatusCode            OptionCode = 13
	OptionRapidCommit           OptionCode = 14
	OptionUserClass             OptionCode = 15
	OptionVendorClass           OptionCode = 16
	OptionVendorOpts            OptionCode = 17
	OptionInterfaceID           OptionCode = 18
	OptionReconfMsg             OptionCode = 19
	OptionReconfAccept          OptionCode = 20
	OptionSIPServersDomainList  OptionCode = 21
	OptionSIPServersAddressList OptionCode = 22
	OptionDNSServers            OptionCode = 23
	OptionDomainSearchList      OptionCode = 24
	OptionIAPD                  OptionCode = 25
	OptionIAPrefix              OptionCode = 26
	OptionNISServers            OptionCode = 27
	OptionSNTPServers           OptionCode = 31
	OptionInfoRefreshTime       OptionCode = 32
	OptionRemoteID              OptionCode = 37
	OptionSubscriberID          OptionCode = 38
	OptionClientFQDN            OptionCode = 39
	OptionNTPServer             OptionCode = 56
	OptionBootfileURL           OptionCode = 59
	OptionBootfileParam         OptionCode = 60
	OptionClientArchType        OptionCode = 61
	OptionAFTRName              OptionCode = 65
	OptionLQQuery               OptionCode = 44
	OptionClientData            OptionCode = 45
	OptionCLTTime               OptionCode = 46
	OptionLQRelayData           OptionCode = 47
	OptionLQClientLink          OptionCode = 48
	OptionClientLinkLayerAddr   OptionCode = 79
	OptionSolMaxRT              OptionCode = 82
	OptionInfMaxRT              OptionCode = 83
	OptionS46Rule               OptionCode = 89
	OptionS46BR                 OptionCode = 90
	OptionS46DMR                OptionCode = 91
	OptionS46V4V6Bind           OptionCode = 92
	OptionS46PortParams         OptionCode = 93
	OptionS46ContMAPE           OptionCode = 94
	OptionS46ContMAPT           OptionCode = 95
	OptionS46ContLW             OptionCode = 96
)

// Option is a decoded (code, value) pair. OpaqueOption preserves
// unknown codes and malformed-but-tolerated bodies verbatim for
// round-trip fidelity.
type Option interface {
	Code() OptionCode
	ToBytes() []byte
}

// OpaqueOption is the fallback variant for option codes the registry
// doesn't know, or whose registered decoder rejected the body as
// structurally invalid.
type OpaqueOption struct {
	OptionCode OptionCode
	Data       []byte
}

func (o *OpaqueOption) Code() OptionCode { return o.OptionCode }
func (o *OpaqueOption) ToBytes() []byte  { return o.Data }

// Options is an ordered container of options, preserving wire order
// on re-encode.
type Options struct {
	list    []Option
	Partial bool // set when a contained option failed structural decode
}

// List returns the options in container order. Callers must not
// mutate the returned slice.
func (o *Options) List() []Option { return o.list }

func (o *Options) Len() int { return len(o.list) }

// Get returns the first option with the given code, or nil.
func (o *Options) Get(code OptionCode) Option {
	for _, opt := range o.list {
		if opt.Code() == code {
			return opt
		}
	}
	return nil
}

// GetAll returns every option with the given code, in order.
func (o *Options) GetAll(code OptionCode) []Option {
	var out []Option
	for _, opt := range o.list {
		if opt.Code() == code {
			out = append(out, opt)
		}
	}
	return out
}

// Add appends an option, unconditionally. Used for multiplicity-many
// options, and internally by Set for the first addition of a
// multiplicity-one option.
func (o *Options) Add(opt Option) {
	o.list = append(o.list, opt)
}

// Set adds opt, replacing any prior option with the same code — the
// right call for multiplicity-one options. Where two handlers in the
// same phase both call Set for the same code, the later call wins,
// which the pipeline's deterministic ordering turns into "last write
// in configuration order wins".
func (o *Options) Set(opt Option) {
	for i, existing := range o.list {
		if existing.Code() == opt.Code() {
			o.list[i] = opt
			return
		}
	}
	o.list = append(o.list, opt)
}

// Del removes every option with the given code.
func (o *Options) Del(code OptionCode) {
	filtered := o.list[:0]
	for _, opt := range o.list {
		if opt.Code() != code {
			filtered = append(filtered, opt)
		}
	}
	o.list = filtered
}

// Has reports whether an option with the given code is present.
func (o *Options) Has(code OptionCode) bool { return o.Get(code) != nil }

// ToBytes re-encodes the container in order; an untouched decoded
// container re-encodes byte-identically to its input.
func (o *Options) ToBytes() []byte {
	var buf []byte
	for _, opt := range o.list {
		body := opt.ToBytes()
		header := make([]byte, 4)
		binary.BigEndian.PutUint16(header[0:2], uint16(opt.Code()))
		binary.BigEndian.PutUint16(header[2:4], uint16(len(body)))
		buf = append(buf, header...)
		buf = append(buf, body...)
	}
	return buf
}

// decodeOptions parses a flat sequence of TLV options. depth is the
// current recursion depth of the enclosing container; it is checked
// against RecursionLimit before any nested decode is attempted.
func decodeOptions(data []byte, depth int) (Options, error) {
	if depth > RecursionLimit {
		return Options{}, codecErr(ErrKindRecursionLimit, "max option nesting depth exceeded")
	}

	var out Options
	seen := map[OptionCode]bool{}
	for len(data) > 0 {
		if len(data) < 4 {
			return out, codecErrf(ErrKindTruncated, "option header truncated", nil)
		}
		code := OptionCode(binary.BigEndian.Uint16(data[0:2]))
		length := binary.BigEndian.Uint16(data[2:4])
		data = data[4:]
		if int(length) > len(data) {
			return out, codecErrf(ErrKindTruncated, "option body truncated", nil)
		}
		body := data[:length]
		data = data[length:]

		entry, known := lookupOption(code)
		if !known {
			out.Add(&OpaqueOption{OptionCode: code, Data: append([]byte(nil), body...)})
			continue
		}

		if entry.multiplicity == MultiplicityOne && seen[code] {
			return out, codecErr(ErrKindDuplicateSingleton, "duplicate singleton option")
		}
		seen[code] = true

		opt, err := entry.decode(body, depth+1)
		if err != nil {
			// Nesting past RecursionLimit fails the whole decode.
			if ce, ok := err.(*CodecError); ok && ce.Kind == ErrKindRecursionLimit {
				return out, err
			}
			// Structural decode failure: fall back to opaque and mark
			// the container partially decoded so handlers can choose
			// to drop.
			out.Add(&OpaqueOption{OptionCode: code, Data: append([]byte(nil), body...)})
			out.Partial = true
			continue
		}
		out.Add(opt)
	}
	return out, nil
}
