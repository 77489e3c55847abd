package embedding

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

var testVocab = []string{
	"[PAD]", "[UNK]", "[CLS]", "[SEP]",
	"docker", "pod", "##man", "is", "fine", "?", "ga", "##5", "5", "the", ",",
}

func newTestTokenizer(t *testing.T) *WordPieceTokenizer {
	t.Helper()
	tok, err := NewWordPieceTokenizer(testVocab)
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func TestWordPieceTokenizer_Tokenize(t *testing.T) {
	tok := newTestTokenizer(t)
	ids, attn, types := tok.Tokenize("Podman, Docker is FINE?", 12)
	// [CLS] pod ##man , docker is fine ? [SEP] [PAD]...
	want := []int64{2, 5, 6, 14, 4, 7, 8, 9, 3, 0, 0, 0}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
	wantAttn := []int64{1, 1, 1, 1, 1, 1, 1, 1, 1, 0, 0, 0}
	if !reflect.DeepEqual(attn, wantAttn) {
		t.Errorf("attention = %v, want %v", attn, wantAttn)
	}
	for i, v := range types {
		if v != 0 {
			t.Errorf("token_type_ids[%d] = %d", i, v)
		}
	}
}

func TestWordPieceTokenizer_unknownWord(t *testing.T) {
	tok := newTestTokenizer(t)
	ids, _, _ := tok.Tokenize("kubernetes ga5", 8)
	want := []int64{2, 1, 10, 11, 3, 0, 0, 0}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
}

func TestWordPieceTokenizer_truncates(t *testing.T) {
	tok := newTestTokenizer(t)
	ids, attn, _ := tok.Tokenize(strings.Repeat("docker ", 20), 5)
	want := []int64{2, 4, 4, 4, 3}
	if !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
	for i, a := range attn {
		if a != 1 {
			t.Errorf("attention[%d] = %d, want 1", i, a)
		}
	}
}

func TestNewWordPieceTokenizer_missingSpecialToken(t *testing.T) {
	if _, err := NewWordPieceTokenizer([]string{"[PAD]", "[CLS]", "[SEP]", "a"}); err == nil {
		t.Error("expected error without [UNK]")
	}
}

func TestLoadWordPieceTokenizer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.txt")
	if err := os.WriteFile(path, []byte(strings.Join(testVocab, "\r\n")+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	tok, err := LoadWordPieceTokenizer(path)
	if err != nil {
		t.Fatal(err)
	}
	ids, _, _ := tok.Tokenize("the", 4)
	if ids[1] != 13 {
		t.Errorf("ids = %v", ids)
	}
	if _, err := LoadWordPieceTokenizer(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing vocab")
	}
}

func TestBasicTokens(t *testing.T) {
	got := basicTokens("  Hello,\tWORLD!\x00 日本 ")
	want := []string{"hello", ",", "world", "!", "日", "本"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("basicTokens = %q, want %q", got, want)
	}
	if basicTokens("   ") != nil {
		t.Error("blank text should yield no tokens")
	}
}
