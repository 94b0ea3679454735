package wire

import (
	"os"
	"regexp"
	"sort"
	"strconv"
	"testing"

	capnp "capnproto.org/go/capnp/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iykyk-syn/accountable/confirm"
	"github.com/iykyk-syn/accountable/crypto"
)

// fieldSlot is where a field lives within its struct: a byte offset into the data section
// or an index into the pointer section.
type fieldSlot struct {
	pointer bool
	offset  int
}

type structLayout struct {
	dataWords int
	pointers  int
	fields    map[string]fieldSlot
}

var (
	structRe = regexp.MustCompile(`(?s)struct (\w+) \{(.*?)\}`)
	fieldRe  = regexp.MustCompile(`(\w+) @(\d+) :([\w()]+);`)
)

// layoutSchema lays out the structs of a schema the way the capnp compiler does:
// in ordinal order, pointers sequentially, data fields into the first fitting hole.
func layoutSchema(t *testing.T, path string) map[string]structLayout {
	src, err := os.ReadFile(path)
	require.NoError(t, err)

	layouts := make(map[string]structLayout)
	for _, sm := range structRe.FindAllStringSubmatch(string(src), -1) {
		type field struct {
			name    string
			ordinal int
			typ     string
		}
		var fields []field
		for _, fm := range fieldRe.FindAllStringSubmatch(sm[2], -1) {
			ordinal, err := strconv.Atoi(fm[2])
			require.NoError(t, err)
			fields = append(fields, field{fm[1], ordinal, fm[3]})
		}
		sort.Slice(fields, func(i, j int) bool { return fields[i].ordinal < fields[j].ordinal })

		layout := structLayout{fields: make(map[string]fieldSlot)}
		// holes maps a log2 bit size to the free slot of that size, in units of that size
		holes := make(map[int]int)
		var alloc func(lgBits int) int
		alloc = func(lgBits int) int {
			if lgBits == 6 {
				layout.dataWords++
				return layout.dataWords - 1
			}
			if off, ok := holes[lgBits]; ok {
				delete(holes, lgBits)
				return off
			}
			off := alloc(lgBits + 1)
			holes[lgBits] = off*2 + 1
			return off * 2
		}

		for _, f := range fields {
			var lgBits int
			switch f.typ {
			case "UInt8":
				lgBits = 3
			case "UInt16":
				lgBits = 4
			case "UInt32":
				lgBits = 5
			case "UInt64":
				lgBits = 6
			default:
				layout.fields[f.name] = fieldSlot{pointer: true, offset: layout.pointers}
				layout.pointers++
				continue
			}
			off := alloc(lgBits)
			layout.fields[f.name] = fieldSlot{offset: off << lgBits >> 3}
		}
		layouts[sm[1]] = layout
	}
	return layouts
}

func TestSchemaLayout(t *testing.T) {
	layouts := layoutSchema(t, "confirm.capnp")

	sizes := map[string]capnp.ObjectSize{
		"Envelope":         envelopeSize,
		"Share":            shareSize,
		"Signature":        signatureSize,
		"LightCertificate": lightCertificateSize,
		"Entry":            entrySize,
		"FullCertificate":  fullCertificateSize,
	}
	require.Len(t, layouts, len(sizes))
	for name, size := range sizes {
		layout, ok := layouts[name]
		require.True(t, ok, name)
		assert.EqualValues(t, layout.dataWords*8, size.DataSize, name)
		assert.EqualValues(t, layout.pointers, size.PointerCount, name)
	}

	value := confirm.Value("hello")
	share := confirm.Share{Signer: 5, Body: []byte("share")}
	entry := confirm.Entry{
		Signer:         5,
		Value:          value,
		Share:          share,
		CrossSignature: crypto.Signature{Body: []byte("cross"), Signer: []byte("collector")},
	}

	// every field written through the accessors is found where the schema puts it
	t.Run("Submit", func(t *testing.T) {
		env := rawEnvelopeOf(t, 7, confirm.NewSubmit(value, share))
		envelope := layouts["Envelope"]
		assert.EqualValues(t, 7, env.Uint32(dataOffset(t, envelope, "origin")))
		assert.EqualValues(t, confirm.KindSubmit, env.Uint8(dataOffset(t, envelope, "kind")))
		assert.Equal(t, []byte(value), rawData(t, env, envelope, "value"))
		assert.False(t, env.HasPtr(ptrIndex(t, envelope, "light")))
		assert.False(t, env.HasPtr(ptrIndex(t, envelope, "full")))

		sh := rawStruct(t, env, envelope, "share")
		assert.EqualValues(t, 5, sh.Uint32(dataOffset(t, layouts["Share"], "signer")))
		assert.Equal(t, share.Body, rawData(t, sh, layouts["Share"], "body"))
	})

	t.Run("LightCertificate", func(t *testing.T) {
		cert := confirm.LightCertificate{Value: value, Shares: []confirm.Share{share}}
		env := rawEnvelopeOf(t, 7, confirm.NewLightCertificateMessage(cert))
		envelope := layouts["Envelope"]
		assert.EqualValues(t, confirm.KindLightCertificate, env.Uint8(dataOffset(t, envelope, "kind")))
		assert.False(t, env.HasPtr(ptrIndex(t, envelope, "share")))

		light := rawStruct(t, env, envelope, "light")
		assert.Equal(t, []byte(value), rawData(t, light, layouts["LightCertificate"], "value"))
		shares := rawList(t, light, layouts["LightCertificate"], "shares")
		require.Equal(t, 1, shares.Len())
		assert.EqualValues(t, 5, shares.At(0).Uint32(dataOffset(t, layouts["Share"], "signer")))
	})

	t.Run("FullCertificate", func(t *testing.T) {
		cert := confirm.FullCertificate{Value: value, Entries: []confirm.Entry{entry}}
		env := rawEnvelopeOf(t, 7, confirm.NewFullCertificateMessage(cert))
		envelope := layouts["Envelope"]
		assert.EqualValues(t, confirm.KindFullCertificate, env.Uint8(dataOffset(t, envelope, "kind")))

		full := rawStruct(t, env, envelope, "full")
		assert.Equal(t, []byte(value), rawData(t, full, layouts["FullCertificate"], "value"))
		entries := rawList(t, full, layouts["FullCertificate"], "entries")
		require.Equal(t, 1, entries.Len())

		e, entryLayout := entries.At(0), layouts["Entry"]
		assert.EqualValues(t, 5, e.Uint32(dataOffset(t, entryLayout, "signer")))
		assert.Equal(t, []byte(value), rawData(t, e, entryLayout, "value"))
		sh := rawStruct(t, e, entryLayout, "share")
		assert.Equal(t, share.Body, rawData(t, sh, layouts["Share"], "body"))
		sig := rawStruct(t, e, entryLayout, "crossSignature")
		assert.Equal(t, entry.CrossSignature.Body, rawData(t, sig, layouts["Signature"], "body"))
		assert.Equal(t, entry.CrossSignature.Signer, rawData(t, sig, layouts["Signature"], "signer"))
	})
}

func rawEnvelopeOf(t *testing.T, origin confirm.ProcessID, msg confirm.Message) capnp.Struct {
	data, err := Marshal(origin, msg)
	require.NoError(t, err)
	capMsg, err := capnp.Unmarshal(data)
	require.NoError(t, err)
	root, err := capMsg.Root()
	require.NoError(t, err)
	return root.Struct()
}

func dataOffset(t *testing.T, layout structLayout, field string) capnp.DataOffset {
	slot, ok := layout.fields[field]
	require.True(t, ok, field)
	require.False(t, slot.pointer, field)
	return capnp.DataOffset(slot.offset)
}

func ptrIndex(t *testing.T, layout structLayout, field string) uint16 {
	slot, ok := layout.fields[field]
	require.True(t, ok, field)
	require.True(t, slot.pointer, field)
	return uint16(slot.offset)
}

func rawPtr(t *testing.T, st capnp.Struct, layout structLayout, field string) capnp.Ptr {
	p, err := st.Ptr(ptrIndex(t, layout, field))
	require.NoError(t, err)
	return p
}

func rawData(t *testing.T, st capnp.Struct, layout structLayout, field string) []byte {
	return rawPtr(t, st, layout, field).Data()
}

func rawStruct(t *testing.T, st capnp.Struct, layout structLayout, field string) capnp.Struct {
	return rawPtr(t, st, layout, field).Struct()
}

func rawList(t *testing.T, st capnp.Struct, layout structLayout, field string) capnp.StructList[capnp.Struct] {
	return capnp.StructList[capnp.Struct](rawPtr(t, st, layout, field).List())
}
