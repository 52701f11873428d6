package framesource

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeFrame(t *testing.T, conn net.Conn, payload []byte) {
	t.Helper()
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	_, err := conn.Write(lenBuf[:])
	require.NoError(t, err)
	_, err = conn.Write(payload)
	require.NoError(t, err)
}

func TestTCPSource_ReadsFrame(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	want := []byte("hello frame")
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		writeFrame(t, conn, want)
	}()

	src := NewTCPSource(ln.Addr().String(), time.Second)
	defer src.Close()

	got, err := src.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestTCPSource_RejectsOversizedFrame(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], maxFrameBytes+1)
		_, _ = conn.Write(lenBuf[:])
	}()

	src := NewTCPSource(ln.Addr().String(), time.Second)
	defer src.Close()

	_, err = src.Next(context.Background())
	require.Error(t, err)
}

func TestTCPSource_ResetsConnectionOnFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Close()
	}()

	src := NewTCPSource(ln.Addr().String(), time.Second)
	defer src.Close()

	_, err = src.Next(context.Background())
	require.Error(t, err)
	require.Nil(t, src.conn)
}
