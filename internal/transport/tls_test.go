package transport

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func selfSignedTLSConfig(t *testing.T) *tls.Config {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "localhost"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		DNSNames:     []string{"localhost"},
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	cert := tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
	return &tls.Config{Certificates: []tls.Certificate{cert}, NextProtos: []string{"dot"}}
}

func TestTLSListenerAcceptRoundTrip(t *testing.T) {
	serverCfg := selfSignedTLSConfig(t)
	ln, err := ListenTLS("127.0.0.1:0", serverCfg)
	require.NoError(t, err)
	defer ln.Close()

	require.Equal(t, "tls", ln.Name())

	clientErr := make(chan error, 1)
	go func() {
		conn, err := tls.Dial("tcp", ln.LocalAddr().String(), &tls.Config{InsecureSkipVerify: true})
		if err != nil {
			clientErr <- err
			return
		}
		defer conn.Close()
		_, err = conn.Write([]byte("ping"))
		clientErr <- err
	}()

	rwc, addr, err := ln.Accept(context.Background())
	require.NoError(t, err)
	defer rwc.Close()
	require.NotNil(t, addr)

	buf := make([]byte, 4)
	_, err = rwc.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "ping", string(buf))
	require.NoError(t, <-clientErr)
}
