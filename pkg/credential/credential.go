// Package credential extracts and holds the short-lived material secondary
// nodes need to join the cluster: a bootstrap token, the CA certificate
// hash, and for control planes the certificate decryption key.
//
// The material is kept in memory only. It is never written to disk and must
// never appear in logs or reports.
package credential

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/kubeboot/kubeboot/pkg/connector"
	"github.com/kubeboot/kubeboot/pkg/runner"
)

// JoinCredential is the complete join material extracted from the primary
// control plane after init.
type JoinCredential struct {
	Token          string
	CACertHash     string
	CertificateKey string
}

// WorkerJoin returns the subset a worker join needs. Workers must never
// receive the certificate key.
func (c *JoinCredential) WorkerJoin() JoinCredential {
	return JoinCredential{Token: c.Token, CACertHash: c.CACertHash}
}

// ControlPlaneJoin returns the full material a secondary control plane needs.
func (c *JoinCredential) ControlPlaneJoin() JoinCredential {
	return *c
}

// ExtractionError reports that the kubeadm output on the primary control
// plane could not be parsed into join material.
type ExtractionError struct {
	Stage  string
	Output string
	Err    error
}

func (e *ExtractionError) Error() string {
	msg := fmt.Sprintf("extracting join credential (%s) failed", e.Stage)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ExtractionError) Unwrap() error { return e.Err }

var (
	tokenRe   = regexp.MustCompile(`--token\s+([a-z0-9]{6}\.[a-z0-9]{16})`)
	caHashRe  = regexp.MustCompile(`--discovery-token-ca-cert-hash\s+(sha256:[0-9a-f]{64})`)
	certKeyRe = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

// Exchange extracts the join credential from the primary control plane
// exactly once per run and hands the cached result to every caller after
// that. Safe for concurrent use.
type Exchange struct {
	once sync.Once
	cred *JoinCredential
	err  error
}

// Preset seeds the exchange with a fixed credential so later Get calls do
// not touch the primary. Used in check mode where no cluster exists yet.
func (e *Exchange) Preset(cred *JoinCredential) {
	e.once.Do(func() { e.cred = cred })
}

// Get returns the join credential, extracting it from the primary control
// plane on first call.
func (e *Exchange) Get(ctx context.Context, conn connector.Connector, r *runner.Runner) (*JoinCredential, error) {
	e.once.Do(func() {
		e.cred, e.err = extract(ctx, conn, r)
	})
	return e.cred, e.err
}

func extract(ctx context.Context, conn connector.Connector, r *runner.Runner) (*JoinCredential, error) {
	joinOut, err := r.Run(ctx, conn, "kubeadm token create --print-join-command", true)
	if err != nil {
		return nil, &ExtractionError{Stage: "token", Err: err}
	}
	certOut, err := r.Run(ctx, conn, "kubeadm init phase upload-certs --upload-certs", true)
	if err != nil {
		return nil, &ExtractionError{Stage: "certificate-key", Err: err}
	}
	return Parse(joinOut, certOut)
}

// Parse builds a JoinCredential from the output of
// "kubeadm token create --print-join-command" and
// "kubeadm init phase upload-certs --upload-certs".
func Parse(joinCmdOut, uploadCertsOut string) (*JoinCredential, error) {
	cred := &JoinCredential{}

	m := tokenRe.FindStringSubmatch(joinCmdOut)
	if m == nil {
		return nil, &ExtractionError{Stage: "token", Output: joinCmdOut,
			Err: errors.New("no bootstrap token in join command output")}
	}
	cred.Token = m[1]

	m = caHashRe.FindStringSubmatch(joinCmdOut)
	if m == nil {
		return nil, &ExtractionError{Stage: "ca-cert-hash", Output: joinCmdOut,
			Err: errors.New("no CA certificate hash in join command output")}
	}
	cred.CACertHash = m[1]

	// The certificate key is the last non-empty line of the upload-certs
	// output, after kubeadm's banner lines.
	lines := strings.Split(strings.TrimSpace(uploadCertsOut), "\n")
	key := strings.TrimSpace(lines[len(lines)-1])
	if !certKeyRe.MatchString(key) {
		return nil, &ExtractionError{Stage: "certificate-key", Output: uploadCertsOut,
			Err: errors.New("last line of upload-certs output is not a certificate key")}
	}
	cred.CertificateKey = key

	return cred, nil
}
