package credential

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	sampleJoinOut = "kubeadm join 10.0.0.100:6443 --token abcdef.0123456789abcdef " +
		"--discovery-token-ca-cert-hash sha256:aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	sampleCertsOut = "[upload-certs] Storing the certificates in Secret \"kubeadm-certs\" in the \"kube-system\" Namespace\n" +
		"[upload-certs] Using certificate key:\n" +
		"bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
)

func TestParseExtractsAllMaterial(t *testing.T) {
	cred, err := Parse(sampleJoinOut, sampleCertsOut)
	require.NoError(t, err)

	assert.Equal(t, "abcdef.0123456789abcdef", cred.Token)
	assert.Equal(t, "sha256:"+strings.Repeat("a", 64), cred.CACertHash)
	assert.Equal(t, strings.Repeat("b", 64), cred.CertificateKey)
}

func TestParseMalformedOutput(t *testing.T) {
	tests := []struct {
		name     string
		joinOut  string
		certsOut string
		stage    string
	}{
		{"empty join output", "", sampleCertsOut, "token"},
		{"token wrong shape", "kubeadm join --token short.tok --discovery-token-ca-cert-hash sha256:" + strings.Repeat("a", 64), sampleCertsOut, "token"},
		{"missing ca hash", "kubeadm join --token abcdef.0123456789abcdef", sampleCertsOut, "ca-cert-hash"},
		{"hash wrong length", "kubeadm join --token abcdef.0123456789abcdef --discovery-token-ca-cert-hash sha256:abcd", sampleCertsOut, "ca-cert-hash"},
		{"banner instead of key", sampleJoinOut, "some warning text", "certificate-key"},
		{"empty certs output", sampleJoinOut, "", "certificate-key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.joinOut, tt.certsOut)
			require.Error(t, err)
			extErr, ok := err.(*ExtractionError)
			require.True(t, ok, "expected *ExtractionError, got %T", err)
			assert.Equal(t, tt.stage, extErr.Stage)
		})
	}
}

func TestWorkerJoinOmitsCertificateKey(t *testing.T) {
	cred, err := Parse(sampleJoinOut, sampleCertsOut)
	require.NoError(t, err)

	worker := cred.WorkerJoin()
	assert.Equal(t, cred.Token, worker.Token)
	assert.Equal(t, cred.CACertHash, worker.CACertHash)
	assert.Empty(t, worker.CertificateKey)

	cp := cred.ControlPlaneJoin()
	assert.Equal(t, cred.CertificateKey, cp.CertificateKey)
}

func TestExchangePresetServesAllCallers(t *testing.T) {
	var ex Exchange
	want := &JoinCredential{Token: "abcdef.0123456789abcdef"}
	ex.Preset(want)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := ex.Get(context.Background(), nil, nil)
			assert.NoError(t, err)
			assert.Same(t, want, got)
		}()
	}
	wg.Wait()

	// A later preset must not replace the first credential.
	ex.Preset(&JoinCredential{Token: "ffffff.ffffffffffffffff"})
	got, err := ex.Get(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Same(t, want, got)
}
