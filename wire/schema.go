package wire

import (
	capnp "capnproto.org/go/capnp/v3"
)

// Accessors below mirror the struct layouts of confirm.capnp.
// Changing field order there requires updating the offsets here; TestSchemaLayout
// recomputes the layouts from confirm.capnp and fails on any mismatch.

type Envelope capnp.Struct

var envelopeSize = capnp.ObjectSize{DataSize: 8, PointerCount: 4}

func NewRootEnvelope(s *capnp.Segment) (Envelope, error) {
	st, err := capnp.NewRootStruct(s, envelopeSize)
	return Envelope(st), err
}

func ReadRootEnvelope(msg *capnp.Message) (Envelope, error) {
	root, err := msg.Root()
	return Envelope(root.Struct()), err
}

func (s Envelope) Origin() uint32 {
	return capnp.Struct(s).Uint32(0)
}

func (s Envelope) SetOrigin(v uint32) {
	capnp.Struct(s).SetUint32(0, v)
}

func (s Envelope) Kind() uint8 {
	return capnp.Struct(s).Uint8(4)
}

func (s Envelope) SetKind(v uint8) {
	capnp.Struct(s).SetUint8(4, v)
}

func (s Envelope) Value() ([]byte, error) {
	p, err := capnp.Struct(s).Ptr(0)
	return p.Data(), err
}

func (s Envelope) SetValue(v []byte) error {
	return capnp.Struct(s).SetData(0, v)
}

func (s Envelope) HasShare() bool {
	return capnp.Struct(s).HasPtr(1)
}

func (s Envelope) Share() (Share, error) {
	p, err := capnp.Struct(s).Ptr(1)
	return Share(p.Struct()), err
}

func (s Envelope) NewShare() (Share, error) {
	ss, err := NewShare(capnp.Struct(s).Segment())
	if err != nil {
		return Share{}, err
	}
	err = capnp.Struct(s).SetPtr(1, capnp.Struct(ss).ToPtr())
	return ss, err
}

func (s Envelope) HasLight() bool {
	return capnp.Struct(s).HasPtr(2)
}

func (s Envelope) Light() (LightCertificate, error) {
	p, err := capnp.Struct(s).Ptr(2)
	return LightCertificate(p.Struct()), err
}

func (s Envelope) NewLight() (LightCertificate, error) {
	ss, err := NewLightCertificate(capnp.Struct(s).Segment())
	if err != nil {
		return LightCertificate{}, err
	}
	err = capnp.Struct(s).SetPtr(2, capnp.Struct(ss).ToPtr())
	return ss, err
}

func (s Envelope) HasFull() bool {
	return capnp.Struct(s).HasPtr(3)
}

func (s Envelope) Full() (FullCertificate, error) {
	p, err := capnp.Struct(s).Ptr(3)
	return FullCertificate(p.Struct()), err
}

func (s Envelope) NewFull() (FullCertificate, error) {
	ss, err := NewFullCertificate(capnp.Struct(s).Segment())
	if err != nil {
		return FullCertificate{}, err
	}
	err = capnp.Struct(s).SetPtr(3, capnp.Struct(ss).ToPtr())
	return ss, err
}

type Share capnp.Struct

var shareSize = capnp.ObjectSize{DataSize: 8, PointerCount: 1}

func NewShare(s *capnp.Segment) (Share, error) {
	st, err := capnp.NewStruct(s, shareSize)
	return Share(st), err
}

func (s Share) Signer() uint32 {
	return capnp.Struct(s).Uint32(0)
}

func (s Share) SetSigner(v uint32) {
	capnp.Struct(s).SetUint32(0, v)
}

func (s Share) Body() ([]byte, error) {
	p, err := capnp.Struct(s).Ptr(0)
	return p.Data(), err
}

func (s Share) SetBody(v []byte) error {
	return capnp.Struct(s).SetData(0, v)
}

type Share_List = capnp.StructList[Share]

func NewShare_List(s *capnp.Segment, sz int32) (Share_List, error) {
	l, err := capnp.NewCompositeList(s, shareSize, sz)
	return capnp.StructList[Share](l), err
}

type Signature capnp.Struct

var signatureSize = capnp.ObjectSize{DataSize: 0, PointerCount: 2}

func NewSignature(s *capnp.Segment) (Signature, error) {
	st, err := capnp.NewStruct(s, signatureSize)
	return Signature(st), err
}

func (s Signature) Body() ([]byte, error) {
	p, err := capnp.Struct(s).Ptr(0)
	return p.Data(), err
}

func (s Signature) SetBody(v []byte) error {
	return capnp.Struct(s).SetData(0, v)
}

func (s Signature) Signer() ([]byte, error) {
	p, err := capnp.Struct(s).Ptr(1)
	return p.Data(), err
}

func (s Signature) SetSigner(v []byte) error {
	return capnp.Struct(s).SetData(1, v)
}

type LightCertificate capnp.Struct

var lightCertificateSize = capnp.ObjectSize{DataSize: 0, PointerCount: 2}

func NewLightCertificate(s *capnp.Segment) (LightCertificate, error) {
	st, err := capnp.NewStruct(s, lightCertificateSize)
	return LightCertificate(st), err
}

func (s LightCertificate) Value() ([]byte, error) {
	p, err := capnp.Struct(s).Ptr(0)
	return p.Data(), err
}

func (s LightCertificate) SetValue(v []byte) error {
	return capnp.Struct(s).SetData(0, v)
}

func (s LightCertificate) Shares() (Share_List, error) {
	p, err := capnp.Struct(s).Ptr(1)
	return Share_List(p.List()), err
}

func (s LightCertificate) NewShares(n int32) (Share_List, error) {
	l, err := NewShare_List(capnp.Struct(s).Segment(), n)
	if err != nil {
		return Share_List{}, err
	}
	err = capnp.Struct(s).SetPtr(1, l.ToPtr())
	return l, err
}

type Entry capnp.Struct

var entrySize = capnp.ObjectSize{DataSize: 8, PointerCount: 3}

func (s Entry) Signer() uint32 {
	return capnp.Struct(s).Uint32(0)
}

func (s Entry) SetSigner(v uint32) {
	capnp.Struct(s).SetUint32(0, v)
}

func (s Entry) Value() ([]byte, error) {
	p, err := capnp.Struct(s).Ptr(0)
	return p.Data(), err
}

func (s Entry) SetValue(v []byte) error {
	return capnp.Struct(s).SetData(0, v)
}

func (s Entry) Share() (Share, error) {
	p, err := capnp.Struct(s).Ptr(1)
	return Share(p.Struct()), err
}

func (s Entry) NewShare() (Share, error) {
	ss, err := NewShare(capnp.Struct(s).Segment())
	if err != nil {
		return Share{}, err
	}
	err = capnp.Struct(s).SetPtr(1, capnp.Struct(ss).ToPtr())
	return ss, err
}

func (s Entry) CrossSignature() (Signature, error) {
	p, err := capnp.Struct(s).Ptr(2)
	return Signature(p.Struct()), err
}

func (s Entry) NewCrossSignature() (Signature, error) {
	ss, err := NewSignature(capnp.Struct(s).Segment())
	if err != nil {
		return Signature{}, err
	}
	err = capnp.Struct(s).SetPtr(2, capnp.Struct(ss).ToPtr())
	return ss, err
}

type Entry_List = capnp.StructList[Entry]

func NewEntry_List(s *capnp.Segment, sz int32) (Entry_List, error) {
	l, err := capnp.NewCompositeList(s, entrySize, sz)
	return capnp.StructList[Entry](l), err
}

type FullCertificate capnp.Struct

var fullCertificateSize = capnp.ObjectSize{DataSize: 0, PointerCount: 2}

func NewFullCertificate(s *capnp.Segment) (FullCertificate, error) {
	st, err := capnp.NewStruct(s, fullCertificateSize)
	return FullCertificate(st), err
}

func (s FullCertificate) Value() ([]byte, error) {
	p, err := capnp.Struct(s).Ptr(0)
	return p.Data(), err
}

func (s FullCertificate) SetValue(v []byte) error {
	return capnp.Struct(s).SetData(0, v)
}

func (s FullCertificate) Entries() (Entry_List, error) {
	p, err := capnp.Struct(s).Ptr(1)
	return Entry_List(p.List()), err
}

func (s FullCertificate) NewEntries(n int32) (Entry_List, error) {
	l, err := NewEntry_List(capnp.Struct(s).Segment(), n)
	if err != nil {
		return Entry_List{}, err
	}
	err = capnp.Struct(s).SetPtr(1, l.ToPtr())
	return l, err
}
