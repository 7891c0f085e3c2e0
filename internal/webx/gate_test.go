package webx

import "testing"

func Test_DomainGate_Allowed(t *testing.T) {
	t.Parallel()
	gate := NewDomainGate(nil, false)

	cases := []struct {
		name string
		url  string
		ok   bool
	}{
		{"allowlisted apex", "https://amazon.com/dp/B0TEST", true},
		{"allowlisted subdomain", "https://www.walmart.com/ip/123", true},
		{"deep subdomain", "https://smile.media.amazon.com/x", true},
		{"unlisted domain", "https://example.com/product", false},
		{"suffix trick", "https://notamazon.com/x", false},
		{"ftp scheme", "ftp://amazon.com/file", false},
		{"no host", "https:///path", false},
		{"relative url", "/products/1", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := gate.Allowed(tc.url)
			if (err == nil) != tc.ok {
				t.Errorf("Allowed(%q) err = %v, want ok=%v", tc.url, err, tc.ok)
			}
		})
	}
}

func Test_DomainGate_AllowAll(t *testing.T) {
	t.Parallel()
	gate := NewDomainGate(nil, true)

	if err := gate.Allowed("https://anything.example/path"); err != nil {
		t.Errorf("allow-all gate rejected https url: %v", err)
	}
	// Non-http schemes stay blocked even in allow-all mode.
	if err := gate.Allowed("file:///etc/passwd"); err == nil {
		t.Error("allow-all gate should still reject non-http schemes")
	}
}

func Test_DomainGate_CustomList(t *testing.T) {
	t.Parallel()
	gate := NewDomainGate([]string{" Shop.Example ", "other.test"}, false)

	if err := gate.Allowed("https://shop.example/a"); err != nil {
		t.Errorf("custom domain rejected: %v", err)
	}
	if err := gate.Allowed("https://amazon.com/a"); err == nil {
		t.Error("default allowlist should be replaced by the custom list")
	}
}

func Test_NewDomainGateFromEnv(t *testing.T) {
	t.Setenv("WEB_FETCH_ALLOWLIST", "shop.example")
	t.Setenv("WEB_FETCH_ALLOW_ALL", "")

	gate := NewDomainGateFromEnv()
	if err := gate.Allowed("https://shop.example/a"); err != nil {
		t.Errorf("env allowlist rejected: %v", err)
	}
	if err := gate.Allowed("https://bestbuy.com/a"); err == nil {
		t.Error("env allowlist should replace the defaults")
	}

	t.Setenv("WEB_FETCH_ALLOW_ALL", "true")
	gate = NewDomainGateFromEnv()
	if err := gate.Allowed("https://anything.example/a"); err != nil {
		t.Errorf("WEB_FETCH_ALLOW_ALL gate rejected: %v", err)
	}
}
