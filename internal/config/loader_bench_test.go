package config

import (
	"testing"
)

func BenchmarkLoadNodeConfig(b *testing.B) {
	dir := b.TempDir()
	path := writeTestConfig(b, dir, testConfigYAML)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		LoadNodeConfig(path)
	}
}

func BenchmarkValidateNodeConfig(b *testing.B) {
	cfg := &NodeConfig{
		Identity: IdentityConfig{KeyFile: "key"},
		Network:  NetworkConfig{ListenAddress: "0.0.0.0:7417"},
		Storage:  StorageConfig{Path: "repos"},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ValidateNodeConfig(cfg)
	}
}
