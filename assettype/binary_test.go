package assettype

import "testing"

func Test_IsBinaryContent_YAMLAsset(t *testing.T) {
	content := []byte("%YAML 1.1\n--- !u!1 &100\nGameObject:\n  m_Name: Hero\n")
	if IsBinaryContent(content) {
		t.Error("expected text-serialized asset to not be detected as binary")
	}
}

func Test_IsBinaryContent_BinaryAsset(t *testing.T) {
	content := []byte{0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x16}
	if !IsBinaryContent(content) {
		t.Error("expected binary-serialized asset to be detected as binary")
	}
}

func Test_IsBinaryContent_EmptyFile(t *testing.T) {
	if IsBinaryContent([]byte{}) {
		t.Error("expected empty content to not be detected as binary")
	}
}

func Test_IsBinaryContent_NullInMiddle(t *testing.T) {
	content := make([]byte, 100)
	for i := range content {
		content[i] = 'a'
	}
	content[50] = 0x00
	if !IsBinaryContent(content) {
		t.Error("expected content with null byte to be detected as binary")
	}
}
