/*
Copyright 2024 The CASD Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package digest

import "testing"

func TestParse(t *testing.T) {
	cases := []struct {
		name      string
		wantErr   bool
		isTesting bool
		comp      Compression
	}{
		{"default", false, false, None},
		{"temporary-foo", false, true, None},
		{"default-deflate", false, false, Zlib},
		{"default-gzip", false, false, Zlib},
		{"temporary-build-deflate", false, true, Zlib},
		{"", true, false, None},
		{"has a space", true, false, None},
		{"way-too-long-namespace-name-for-real-this-time", true, false, None},
	}
	for _, c := range cases {
		ns, err := Parse(c.name)
		if (err != nil) != c.wantErr {
			t.Errorf("Parse(%q) error = %v, wantErr %v", c.name, err, c.wantErr)
			continue
		}
		if err != nil {
			continue
		}
		if ns.IsTesting != c.isTesting {
			t.Errorf("Parse(%q).IsTesting = %v, want %v", c.name, ns.IsTesting, c.isTesting)
		}
		if ns.Compressed != c.comp {
			t.Errorf("Parse(%q).Compressed = %v, want %v", c.name, ns.Compressed, c.comp)
		}
	}
}

func TestMaxNamespaceLen(t *testing.T) {
	ok := ""
	for i := 0; i < MaxNamespaceLen; i++ {
		ok += "a"
	}
	if _, err := Parse(ok); err != nil {
		t.Errorf("Parse(29 chars) failed: %v", err)
	}
	if _, err := Parse(ok + "a"); err == nil {
		t.Errorf("Parse(30 chars) succeeded, want error")
	}
}

func TestValidHex(t *testing.T) {
	ns, err := Parse("default")
	if err != nil {
		t.Fatal(err)
	}
	good := "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d" // sha1("hello")
	if !ValidHex(ns, good) {
		t.Errorf("ValidHex(%q) = false, want true", good)
	}
	bad := []string{
		"",
		good[:len(good)-1],
		good + "a",
		"AAF4C61DDCC5E8A2DABEDE0F3B482CD9AEA9434D",
		"zzf4c61ddcc5e8a2dabede0f3b482cd9aea9434d",
	}
	for _, h := range bad {
		if ValidHex(ns, h) {
			t.Errorf("ValidHex(%q) = true, want false", h)
		}
	}
}
