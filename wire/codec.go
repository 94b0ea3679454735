// Package wire implements the Cap'n Proto encoding of confirm.Message envelopes
// exchanged over Best-Effort Broadcast transports.
package wire

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	capnp "capnproto.org/go/capnp/v3"

	"github.com/iykyk-syn/accountable/confirm"
	"github.com/iykyk-syn/accountable/crypto"
)

// ErrMalformed is returned for payloads that do not decode into a well-formed Message.
var ErrMalformed = errors.New("malformed message")

// Marshal encodes the Message along with the identity of its origin.
func Marshal(origin confirm.ProcessID, msg confirm.Message) ([]byte, error) {
	if err := checkMessage(msg); err != nil {
		return nil, err
	}

	capMsg, seg, err := capnp.NewMessage(capnp.SingleSegment(nil))
	if err != nil {
		return nil, fmt.Errorf("creating a segment for capnp: %w", err)
	}

	env, err := NewRootEnvelope(seg)
	if err != nil {
		return nil, fmt.Errorf("creating root envelope: %w", err)
	}
	env.SetOrigin(uint32(origin))
	env.SetKind(uint8(msg.Kind))
	if err = env.SetValue(msg.Value); err != nil {
		return nil, err
	}

	switch msg.Kind {
	case confirm.KindSubmit:
		share, err := env.NewShare()
		if err != nil {
			return nil, err
		}
		err = encodeShare(share, msg.Share)
		if err != nil {
			return nil, err
		}
	case confirm.KindLightCertificate:
		light, err := env.NewLight()
		if err != nil {
			return nil, err
		}
		err = encodeLight(light, *msg.Light)
		if err != nil {
			return nil, err
		}
	case confirm.KindFullCertificate:
		full, err := env.NewFull()
		if err != nil {
			return nil, err
		}
		err = encodeFull(full, *msg.Full)
		if err != nil {
			return nil, err
		}
	}

	return capMsg.Marshal()
}

// Unmarshal decodes a payload produced by Marshal.
// Any malformation, including one triggering a panic deep in decoding, is reported as ErrMalformed.
func Unmarshal(data []byte) (origin confirm.ProcessID, msg confirm.Message, err error) {
	defer func() {
		// recover from potential panics caused by network input
		if r := recover(); r != nil {
			origin, msg, err = 0, confirm.Message{}, fmt.Errorf("%w: %v", ErrMalformed, r)
		}
	}()

	capMsg, err := capnp.Unmarshal(data)
	if err != nil {
		return 0, confirm.Message{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	env, err := ReadRootEnvelope(capMsg)
	if err != nil {
		return 0, confirm.Message{}, fmt.Errorf("%w: reading envelope: %w", ErrMalformed, err)
	}

	msg, err = decodeEnvelope(env)
	if err != nil {
		return 0, confirm.Message{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if err = checkMessage(msg); err != nil {
		return 0, confirm.Message{}, err
	}
	return confirm.ProcessID(env.Origin()), msg, nil
}

// checkMessage ensures fields required by the Message Kind are present.
func checkMessage(msg confirm.Message) error {
	if len(msg.Value) == 0 {
		return fmt.Errorf("%w: empty value", ErrMalformed)
	}

	switch msg.Kind {
	case confirm.KindSubmit:
		if len(msg.Share.Body) == 0 {
			return fmt.Errorf("%w: submit without share", ErrMalformed)
		}
	case confirm.KindLightCertificate:
		if msg.Light == nil {
			return fmt.Errorf("%w: light certificate message without certificate", ErrMalformed)
		}
		if len(msg.Light.Shares) > math.MaxInt32 {
			return fmt.Errorf("%w: too many shares", ErrMalformed)
		}
	case confirm.KindFullCertificate:
		if msg.Full == nil {
			return fmt.Errorf("%w: full certificate message without certificate", ErrMalformed)
		}
		if len(msg.Full.Entries) > math.MaxInt32 {
			return fmt.Errorf("%w: too many entries", ErrMalformed)
		}
	default:
		return fmt.Errorf("%w: unknown kind %s", ErrMalformed, msg.Kind)
	}
	return nil
}

func decodeEnvelope(env Envelope) (confirm.Message, error) {
	value, err := env.Value()
	if err != nil {
		return confirm.Message{}, err
	}

	msg := confirm.Message{
		Kind:  confirm.Kind(env.Kind()),
		Value: bytes.Clone(value),
	}

	switch msg.Kind {
	case confirm.KindSubmit:
		if !env.HasShare() {
			return confirm.Message{}, errors.New("submit without share")
		}
		share, err := env.Share()
		if err != nil {
			return confirm.Message{}, err
		}
		msg.Share, err = decodeShare(share)
		if err != nil {
			return confirm.Message{}, err
		}
	case confirm.KindLightCertificate:
		if !env.HasLight() {
			return confirm.Message{}, errors.New("light certificate message without certificate")
		}
		light, err := env.Light()
		if err != nil {
			return confirm.Message{}, err
		}
		cert, err := decodeLight(light)
		if err != nil {
			return confirm.Message{}, err
		}
		msg.Light = &cert
	case confirm.KindFullCertificate:
		if !env.HasFull() {
			return confirm.Message{}, errors.New("full certificate message without certificate")
		}
		full, err := env.Full()
		if err != nil {
			return confirm.Message{}, err
		}
		cert, err := decodeFull(full)
		if err != nil {
			return confirm.Message{}, err
		}
		msg.Full = &cert
	}
	return msg, nil
}

func encodeShare(dst Share, share confirm.Share) error {
	dst.SetSigner(uint32(share.Signer))
	return dst.SetBody(share.Body)
}

func decodeShare(src Share) (confirm.Share, error) {
	body, err := src.Body()
	if err != nil {
		return confirm.Share{}, err
	}
	return confirm.Share{
		Signer: confirm.ProcessID(src.Signer()),
		Body:   bytes.Clone(body),
	}, nil
}

func encodeLight(dst LightCertificate, cert confirm.LightCertificate) error {
	err := dst.SetValue(cert.Value)
	if err != nil {
		return err
	}

	shares, err := dst.NewShares(int32(len(cert.Shares)))
	if err != nil {
		return err
	}
	for i, s := range cert.Shares {
		err = encodeShare(shares.At(i), s)
		if err != nil {
			return err
		}
	}
	return nil
}

func decodeLight(src LightCertificate) (confirm.LightCertificate, error) {
	value, err := src.Value()
	if err != nil {
		return confirm.LightCertificate{}, err
	}
	list, err := src.Shares()
	if err != nil {
		return confirm.LightCertificate{}, err
	}

	cert := confirm.LightCertificate{
		Value:  bytes.Clone(value),
		Shares: make([]confirm.Share, list.Len()),
	}
	for i := range cert.Shares {
		cert.Shares[i], err = decodeShare(list.At(i))
		if err != nil {
			return confirm.LightCertificate{}, err
		}
	}
	return cert, nil
}

func encodeFull(dst FullCertificate, cert confirm.FullCertificate) error {
	err := dst.SetValue(cert.Value)
	if err != nil {
		return err
	}

	entries, err := dst.NewEntries(int32(len(cert.Entries)))
	if err != nil {
		return err
	}
	for i, e := range cert.Entries {
		err = encodeEntry(entries.At(i), e)
		if err != nil {
			return err
		}
	}
	return nil
}

func decodeFull(src FullCertificate) (confirm.FullCertificate, error) {
	value, err := src.Value()
	if err != nil {
		return confirm.FullCertificate{}, err
	}
	list, err := src.Entries()
	if err != nil {
		return confirm.FullCertificate{}, err
	}

	cert := confirm.FullCertificate{
		Value:   bytes.Clone(value),
		Entries: make([]confirm.Entry, list.Len()),
	}
	for i := range cert.Entries {
		cert.Entries[i], err = decodeEntry(list.At(i))
		if err != nil {
			return confirm.FullCertificate{}, err
		}
	}
	return cert, nil
}

func encodeEntry(dst Entry, e confirm.Entry) error {
	dst.SetSigner(uint32(e.Signer))
	err := dst.SetValue(e.Value)
	if err != nil {
		return err
	}

	share, err := dst.NewShare()
	if err != nil {
		return err
	}
	err = encodeShare(share, e.Share)
	if err != nil {
		return err
	}

	sig, err := dst.NewCrossSignature()
	if err != nil {
		return err
	}
	err = sig.SetBody(e.CrossSignature.Body)
	if err != nil {
		return err
	}
	return sig.SetSigner(e.CrossSignature.Signer)
}

func decodeEntry(src Entry) (confirm.Entry, error) {
	value, err := src.Value()
	if err != nil {
		return confirm.Entry{}, err
	}
	share, err := src.Share()
	if err != nil {
		return confirm.Entry{}, err
	}
	decShare, err := decodeShare(share)
	if err != nil {
		return confirm.Entry{}, err
	}

	sig, err := src.CrossSignature()
	if err != nil {
		return confirm.Entry{}, err
	}
	body, err := sig.Body()
	if err != nil {
		return confirm.Entry{}, err
	}
	signer, err := sig.Signer()
	if err != nil {
		return confirm.Entry{}, err
	}

	return confirm.Entry{
		Signer: confirm.ProcessID(src.Signer()),
		Value:  bytes.Clone(value),
		Share:  decShare,
		CrossSignature: crypto.Signature{
			Body:   bytes.Clone(body),
			Signer: bytes.Clone(signer),
		},
	}, nil
}
