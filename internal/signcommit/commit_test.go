package signcommit

import (
	"bytes"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packhost/repod/internal/apierr"
)

func generateTestEntity(t *testing.T) *openpgp.Entity {
	t.Helper()
	entity, err := openpgp.NewEntity("Test Signer", "", "test@example.com", nil)
	require.NoError(t, err)
	return entity
}

func clearsignRelease(t *testing.T, entity *openpgp.Entity, release []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := clearsign.Encode(&buf, entity.PrivateKey, nil)
	require.NoError(t, err)
	_, err = w.Write(release)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func detachSignRelease(t *testing.T, entity *openpgp.Entity, release []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, openpgp.DetachSign(&buf, entity, bytes.NewReader(release), nil))
	return buf.Bytes()
}

func armoredPublicKey(t *testing.T, entity *openpgp.Entity) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	require.NoError(t, err)
	require.NoError(t, entity.Serialize(w))
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestVerifySignaturesAccepts(t *testing.T) {
	entity := generateTestEntity(t)
	release := []byte("Origin: Acme\nSuite: stable\n")

	clearsigned := clearsignRelease(t, entity, release)
	detached := detachSignRelease(t, entity, release)
	pubKey := armoredPublicKey(t, entity)

	err := verifySignatures(release, clearsigned, detached, pubKey)
	assert.NoError(t, err)
}

func TestVerifySignaturesRejectsStaleRelease(t *testing.T) {
	entity := generateTestEntity(t)
	signed := []byte("Origin: Acme\nSuite: stable\n")
	recomputed := []byte("Origin: Acme\nSuite: unstable\n")

	clearsigned := clearsignRelease(t, entity, signed)
	detached := detachSignRelease(t, entity, signed)
	pubKey := armoredPublicKey(t, entity)

	err := verifySignatures(recomputed, clearsigned, detached, pubKey)
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.SigVerifyFailed, apiErr.Code)
}

func TestVerifySignaturesRejectsWrongKey(t *testing.T) {
	signer := generateTestEntity(t)
	impostor := generateTestEntity(t)
	release := []byte("Origin: Acme\nSuite: stable\n")

	clearsigned := clearsignRelease(t, signer, release)
	detached := detachSignRelease(t, signer, release)
	wrongPubKey := armoredPublicKey(t, impostor)

	err := verifySignatures(release, clearsigned, detached, wrongPubKey)
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.SigVerifyFailed, apiErr.Code)
}

func TestVerifySignaturesRejectsUndecodableClearsign(t *testing.T) {
	entity := generateTestEntity(t)
	release := []byte("Origin: Acme\nSuite: stable\n")
	detached := detachSignRelease(t, entity, release)
	pubKey := armoredPublicKey(t, entity)

	err := verifySignatures(release, []byte("not a clearsigned block"), detached, pubKey)
	require.Error(t, err)
	apiErr, ok := apierr.As(err)
	require.True(t, ok)
	assert.Equal(t, apierr.SigVerifyFailed, apiErr.Code)
}

func TestNormalizeClearsignBodyTrimsTrailingNewlines(t *testing.T) {
	assert.Equal(t, []byte("foo"), normalizeClearsignBody([]byte("foo\n")))
	assert.Equal(t, []byte("foo"), normalizeClearsignBody([]byte("foo\n\n")))
	assert.Equal(t, []byte("foo"), normalizeClearsignBody([]byte("foo")))
}

func TestDetachedSignatureReaderAcceptsArmoredAndRaw(t *testing.T) {
	entity := generateTestEntity(t)
	release := []byte("Origin: Acme\nSuite: stable\n")

	var raw bytes.Buffer
	require.NoError(t, openpgp.DetachSign(&raw, entity, bytes.NewReader(release), nil))

	var armored bytes.Buffer
	aw, err := armor.Encode(&armored, openpgp.SignatureType, nil)
	require.NoError(t, err)
	_, err = aw.Write(raw.Bytes())
	require.NoError(t, err)
	require.NoError(t, aw.Close())

	armoredOut := new(bytes.Buffer)
	armoredOut.ReadFrom(detachedSignatureReader(armored.Bytes()))
	rawOut := new(bytes.Buffer)
	rawOut.ReadFrom(detachedSignatureReader(raw.Bytes()))

	assert.Equal(t, rawOut.Bytes(), armoredOut.Bytes(), "decoded armored signature must match the raw binary signature")
}
