package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignatureVerifier(t *testing.T) {
	body := []byte(`{"userId":"u1","steps":10}`)
	v := NewSignatureVerifier("whsec")

	mac := hmac.New(sha256.New, []byte("whsec"))
	mac.Write(body)
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	assert.True(t, v.Enabled())
	assert.Equal(t, want, v.Sign(body))
	assert.True(t, v.Verify(body, want))
	assert.False(t, v.Verify(body, ""))
	assert.False(t, v.Verify([]byte(`{"userId":"u1","steps":11}`), want))
	assert.False(t, NewSignatureVerifier("other").Verify(body, want))
}

func TestSignatureVerifier_Disabled(t *testing.T) {
	v := NewSignatureVerifier("")
	assert.False(t, v.Enabled())
	assert.True(t, v.Verify([]byte("anything"), ""))
}
