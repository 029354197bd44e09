////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package zkcrypto

import (
	"encoding/base64"
	"strings"

	"github.com/pkg/errors"
)

// ProofPoints are the Groth16 proof points returned by the prover, as
// decimal strings.
type ProofPoints struct {
	A []string   `json:"a"`
	B [][]string `json:"b"`
	C []string   `json:"c"`
}

// Claim is a base64 fragment of the token with its offset modulo 4.
type Claim struct {
	Value     string `json:"value"`
	IndexMod4 int    `json:"indexMod4"`
}

// ZkProof is the proof object returned by the prover. It is the composite
// signature input minus the address seed.
type ZkProof struct {
	ProofPoints      ProofPoints `json:"proofPoints"`
	IssBase64Details Claim       `json:"issBase64Details"`
	HeaderBase64     string      `json:"headerBase64"`
}

// Validate rejects proofs with missing fields.
func (p *ZkProof) Validate() error {
	var missing []string
	if len(p.ProofPoints.A) == 0 {
		missing = append(missing, "proofPoints.a")
	}
	if len(p.ProofPoints.B) == 0 {
		missing = append(missing, "proofPoints.b")
	}
	if len(p.ProofPoints.C) == 0 {
		missing = append(missing, "proofPoints.c")
	}
	if p.IssBase64Details.Value == "" {
		missing = append(missing, "issBase64Details.value")
	}
	if p.IssBase64Details.IndexMod4 < 0 || p.IssBase64Details.IndexMod4 > 3 {
		missing = append(missing, "issBase64Details.indexMod4")
	}
	if p.HeaderBase64 == "" {
		missing = append(missing, "headerBase64")
	}
	if len(missing) > 0 {
		return errors.Errorf("proof is missing %s",
			strings.Join(missing, ", "))
	}
	return nil
}

// ZkLoginInputs is a proof completed with the address seed.
type ZkLoginInputs struct {
	ZkProof
	AddressSeed string `json:"addressSeed"`
}

// ZkLoginSignatureParts is the decoded form of a composite signature.
type ZkLoginSignatureParts struct {
	Inputs        ZkLoginInputs
	MaxEpoch      uint64
	UserSignature []byte
}

// ZkLoginSignature assembles the composite signature submitted in place of
// a single-key signature: base64(flag || bcs(inputs, maxEpoch,
// userSignature)).
func ZkLoginSignature(inputs ZkLoginInputs, maxEpoch uint64,
	userSignature string) (string, error) {
	if err := inputs.Validate(); err != nil {
		return "", err
	}
	if inputs.AddressSeed == "" {
		return "", errors.New("address seed is missing")
	}
	sig, err := base64.StdEncoding.DecodeString(userSignature)
	if err != nil {
		return "", errors.WithMessage(err, userSigEncodingErr)
	}

	w := &bcsWriter{}
	w.u8(SignatureSchemeZkLogin)
	w.strings(inputs.ProofPoints.A)
	w.length(len(inputs.ProofPoints.B))
	for _, b := range inputs.ProofPoints.B {
		w.strings(b)
	}
	w.strings(inputs.ProofPoints.C)
	w.string(inputs.IssBase64Details.Value)
	w.u8(uint8(inputs.IssBase64Details.IndexMod4))
	w.string(inputs.HeaderBase64)
	w.string(inputs.AddressSeed)
	w.u64(maxEpoch)
	w.bytes(sig)
	return base64.StdEncoding.EncodeToString(w.buf), nil
}

// ParseZkLoginSignature decodes a composite signature.
func ParseZkLoginSignature(serialized string) (*ZkLoginSignatureParts, error) {
	raw, err := base64.StdEncoding.DecodeString(serialized)
	if err != nil {
		return nil, errors.WithMessage(err, "composite signature is not "+
			"valid base64")
	}
	r := &bcsReader{buf: raw}
	if flag := r.u8(); r.err == nil && flag != SignatureSchemeZkLogin {
		return nil, errors.Errorf("signature has scheme flag %#x; "+
			"expected %#x", flag, SignatureSchemeZkLogin)
	}

	p := &ZkLoginSignatureParts{}
	p.Inputs.ProofPoints.A = r.strings()
	nb := r.length()
	for i := 0; i < nb && r.err == nil; i++ {
		p.Inputs.ProofPoints.B = append(p.Inputs.ProofPoints.B, r.strings())
	}
	p.Inputs.ProofPoints.C = r.strings()
	p.Inputs.IssBase64Details.Value = r.string()
	p.Inputs.IssBase64Details.IndexMod4 = int(r.u8())
	p.Inputs.HeaderBase64 = r.string()
	p.Inputs.AddressSeed = r.string()
	p.MaxEpoch = r.u64()
	p.UserSignature = r.bytes()
	if r.err != nil {
		return nil, r.err
	}
	if len(r.buf) != 0 {
		return nil, errors.Errorf("%d trailing bytes after signature",
			len(r.buf))
	}
	return p, nil
}
