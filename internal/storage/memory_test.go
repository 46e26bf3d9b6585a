package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func putString(t *testing.T, s Store, key, body string, overwrite bool) error {
	t.Helper()
	return s.PutObject(context.Background(), key, strings.NewReader(body), int64(len(body)), PutOptions{
		ContentType: "application/octet-stream",
		Overwrite:   overwrite,
	})
}

func TestMemoryStorePutGet(t *testing.T) {
	s := NewMemoryStore("")
	if err := putString(t, s, "u/a", "hello", false); err != nil {
		t.Fatal(err)
	}
	if err := putString(t, s, "u/a", "again", false); !errors.Is(err, ErrObjectExists) {
		t.Fatalf("expect ErrObjectExists, got %v", err)
	}
	if err := putString(t, s, "u/a", "world", true); err != nil {
		t.Fatal(err)
	}
	rc, info, err := s.GetObject(context.Background(), "u/a")
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "world" || info.Size != 5 {
		t.Fatalf("unexpected object: %q size %d", data, info.Size)
	}
	if _, _, err := s.GetObject(context.Background(), "u/missing"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expect ErrObjectNotFound, got %v", err)
	}
}

func TestMemoryStoreListRemove(t *testing.T) {
	s := NewMemoryStore("http://cdn.local/")
	for _, key := range []string{"u/s_chunk_000001", "u/s_chunk_000000", "u/other", "v/s_chunk_000000"} {
		if err := putString(t, s, key, "x", true); err != nil {
			t.Fatal(err)
		}
	}
	objs, err := s.ListObjects(context.Background(), "u/s_chunk_")
	if err != nil {
		t.Fatal(err)
	}
	if len(objs) != 2 || objs[0].Key != "u/s_chunk_000000" {
		t.Fatalf("unexpected listing: %+v", objs)
	}
	if err := s.RemoveObjects(context.Background(), []string{objs[0].Key, objs[1].Key}); err != nil {
		t.Fatal(err)
	}
	objs, _ = s.ListObjects(context.Background(), "u/")
	if len(objs) != 1 || objs[0].Key != "u/other" {
		t.Fatalf("unexpected listing after remove: %+v", objs)
	}
	url, _ := s.PublicURL(context.Background(), "u/other")
	if url != "http://cdn.local/u/other" {
		t.Fatalf("unexpected url: %s", url)
	}
}

func TestJoinPublicURL(t *testing.T) {
	got := joinPublicURL("https://cdn.example.com/", "videos", "user 1/session-a-1_final.webm")
	expected := "https://cdn.example.com/videos/user%201/session-a-1_final.webm"
	if got != expected {
		t.Fatalf("joinPublicURL failed: expect %s, got %s", expected, got)
	}
}
