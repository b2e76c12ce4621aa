package appconfig

import (
	"encoding/json"
	"path/filepath"
	"testing"
)

// TestDefaultConfig verifies default configuration values
func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.ListenAddr != "127.0.0.1:5000" {
		t.Errorf("Default ListenAddr = %q; want %q", cfg.ListenAddr, "127.0.0.1:5000")
	}
	if cfg.JobConcurrency != 1 {
		t.Errorf("Default JobConcurrency = %d; want 1", cfg.JobConcurrency)
	}
	if filepath.Base(cfg.DBPath) != "jobs.db" {
		t.Errorf("Default DBPath = %q; want it to end in jobs.db", cfg.DBPath)
	}
	if cfg.S3.Enabled() {
		t.Error("S3 publishing should be disabled by default")
	}
	if cfg.VR180 != DefaultVR180() {
		t.Errorf("Default VR180 = %+v; want %+v", cfg.VR180, DefaultVR180())
	}
}

// TestGetSet verifies Get/Set functions for in-memory config
func TestGetSet(t *testing.T) {
	original := Get()
	defer Set(original)

	testConfig := Config{
		DBPath:     "/test/path/db.sqlite",
		OutputDir:  "/test/output",
		ListenAddr: ":9999",
	}
	Set(testConfig)

	retrieved := Get()
	if retrieved.DBPath != testConfig.DBPath {
		t.Errorf("Get().DBPath = %q; want %q", retrieved.DBPath, testConfig.DBPath)
	}
	if retrieved.OutputDir != testConfig.OutputDir {
		t.Errorf("Get().OutputDir = %q; want %q", retrieved.OutputDir, testConfig.OutputDir)
	}
	if retrieved.ListenAddr != testConfig.ListenAddr {
		t.Errorf("Get().ListenAddr = %q; want %q", retrieved.ListenAddr, testConfig.ListenAddr)
	}
}

// TestIsJSONObject tests the JSON object detection helper
func TestIsJSONObject(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{`{}`, true},
		{`{"key": "value"}`, true},
		{`  {  }  `, true},
		{`[]`, false},
		{`"string"`, false},
		{`123`, false},
		{`null`, false},
		{``, false},
	}

	for _, tt := range tests {
		result := isJSONObject([]byte(tt.input))
		if result != tt.expected {
			t.Errorf("isJSONObject(%q) = %v; want %v", tt.input, result, tt.expected)
		}
	}
}

// TestDeepMergeJSON tests the JSON merge functionality
func TestDeepMergeJSON(t *testing.T) {
	tests := []struct {
		name     string
		dst      string
		src      string
		expected string
	}{
		{"Simple merge", `{"a": "1"}`, `{"b": "2"}`, `{"a":"1","b":"2"}`},
		{"Override value", `{"a": "1"}`, `{"a": "2"}`, `{"a":"2"}`},
		{"Nested merge", `{"vr180": {"custom": 1}}`, `{"vr180": {"maxDisparity": 80}}`, `{"vr180":{"custom":1,"maxDisparity":80}}`},
		{"Add new nested", `{"a": "1"}`, `{"s3": {"bucket": "b"}}`, `{"a":"1","s3":{"bucket":"b"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dst, src map[string]json.RawMessage
			json.Unmarshal([]byte(tt.dst), &dst)
			json.Unmarshal([]byte(tt.src), &src)

			deepMergeJSON(dst, src)

			result, _ := json.Marshal(dst)
			var resultMap, expectedMap map[string]interface{}
			json.Unmarshal(result, &resultMap)
			json.Unmarshal([]byte(tt.expected), &expectedMap)

			if !mapsEqual(resultMap, expectedMap) {
				t.Errorf("deepMergeJSON result = %s; want %s", result, tt.expected)
			}
		})
	}
}

// mapsEqual compares two maps recursively
func mapsEqual(a, b map[string]interface{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		bv, ok := b[k]
		if !ok {
			return false
		}
		if !valuesEqual(v, bv) {
			return false
		}
	}
	return true
}

func valuesEqual(a, b interface{}) bool {
	switch av := a.(type) {
	case map[string]interface{}:
		bv, ok := b.(map[string]interface{})
		if !ok {
			return false
		}
		return mapsEqual(av, bv)
	default:
		return a == b
	}
}

// TestParseKeepsDefaultsForMissingKeys checks partial documents
func TestParseKeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, needsSave, err := Parse([]byte(`{"outputDir": "/out", "vr180": {"maxDisparity": 40, "barrelK1": 0}}`))
	if err != nil {
		t.Fatalf("Parse error = %v", err)
	}
	if !needsSave {
		t.Error("missing dbPath should request a save")
	}
	if cfg.OutputDir != "/out" {
		t.Errorf("OutputDir = %q; want /out", cfg.OutputDir)
	}
	if cfg.VR180.MaxDisparity != 40 {
		t.Errorf("MaxDisparity = %v; want 40", cfg.VR180.MaxDisparity)
	}
	if cfg.VR180.BarrelK1 != 0 {
		t.Errorf("explicit BarrelK1 = %v; want 0", cfg.VR180.BarrelK1)
	}
	if cfg.VR180.OutputWidth != 3840 || cfg.VR180.EdgeBlendWidthPx != 50 || !cfg.VR180.IncludeAudio {
		t.Errorf("missing VR180 keys did not keep defaults: %+v", cfg.VR180)
	}
}

// TestParseInvalidJSON ensures syntax errors surface
func TestParseInvalidJSON(t *testing.T) {
	if _, _, err := Parse([]byte(`{"dbPath": `)); err == nil {
		t.Error("Parse should fail on truncated JSON")
	}
}

// TestConfigJSONMarshal verifies Config can be marshaled to JSON
func TestConfigJSONMarshal(t *testing.T) {
	data, err := json.Marshal(defaultConfig())
	if err != nil {
		t.Fatalf("json.Marshal error = %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Result is not valid JSON: %v", err)
	}

	for _, key := range []string{"dbPath", "workspaceDir", "outputDir", "listenAddr", "vr180", "s3"} {
		if _, ok := parsed[key]; !ok {
			t.Errorf("Expected key %q not found in JSON output", key)
		}
	}
	vr, _ := parsed["vr180"].(map[string]interface{})
	for _, key := range []string{
		"outputWidth", "outputHeight", "eyeSeparation", "convergenceDistance", "maxDisparity",
		"frameSampleRateFPS", "barrelK1", "chromaticRedScale", "chromaticBlueScale", "edgeBlendWidthPx",
	} {
		if _, ok := vr[key]; !ok {
			t.Errorf("Expected vr180 key %q not found in JSON output", key)
		}
	}
}

// TestConfigConcurrency tests concurrent access to Get/Set
func TestConfigConcurrency(t *testing.T) {
	original := Get()
	defer Set(original)

	done := make(chan bool)
	go func() {
		for i := 0; i < 100; i++ {
			Set(Config{DBPath: "/path"})
		}
		done <- true
	}()
	go func() {
		for i := 0; i < 100; i++ {
			_ = Get()
		}
		done <- true
	}()
	<-done
	<-done
}
