package storage

import "testing"

func TestTableName(t *testing.T) {
	cases := []struct {
		slug, logical, want string
	}{
		{"hello-world", "visits", "plugin_hello_world_visits"},
		{"seo", "Page_Meta", "plugin_seo_pagemeta"},
		{"a1-b2", "x-y z", "plugin_a1_b2_xyz"},
	}
	for _, tc := range cases {
		if got := TableName(tc.slug, tc.logical); got != tc.want {
			t.Errorf("TableName(%q, %q) = %q, want %q", tc.slug, tc.logical, got, tc.want)
		}
	}
}

func TestTableName_DistinctPluginsNeverCollide(t *testing.T) {
	pairs := [][2]string{
		{"hello", "hello-world"},
		{"a-b", "a"},
		{"blog", "blog-seo"},
	}
	logicals := []string{"visits", "world_visits", "b_visits", "seo"}
	for _, p := range pairs {
		for _, la := range logicals {
			for _, lb := range logicals {
				if TableName(p[0], la) == TableName(p[1], lb) {
					t.Fatalf("collision: (%s,%s) and (%s,%s) -> %s",
						p[0], la, p[1], lb, TableName(p[0], la))
				}
			}
		}
	}
	if TableName("a", "visits") == TableName("b", "visits") {
		t.Fatal("same logical name collided across plugins")
	}
}

func TestTableName_Stable(t *testing.T) {
	if TableName("hello-world", "visits") != TableName("hello-world", "visits") {
		t.Fatal("TableName is not deterministic")
	}
}

func TestValidSlug(t *testing.T) {
	for _, s := range []string{"hello-world", "seo", "a1-b2-c3"} {
		if !ValidSlug(s) {
			t.Errorf("ValidSlug(%q) = false", s)
		}
	}
	for _, s := range []string{"", "Hello", "hello_world", "-x", "x-", "a--b", "a b"} {
		if ValidSlug(s) {
			t.Errorf("ValidSlug(%q) = true", s)
		}
	}
}
