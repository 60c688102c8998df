package main

import (
	"fmt"
	"sort"
	"strings"
)

// registryFlag collects repeated -r name=url values. A later value of the
// same name replaces the earlier one.
type registryFlag struct {
	values map[string]string
}

func newRegistryFlag() *registryFlag {
	return &registryFlag{values: make(map[string]string)}
}

func (f *registryFlag) String() string {
	entries := make([]string, 0, len(f.values))
	for name, url := range f.values {
		entries = append(entries, name+"="+url)
	}
	sort.Strings(entries)
	return "[" + strings.Join(entries, ",") + "]"
}

func (f *registryFlag) Set(value string) error {
	name, url, err := splitRegistry(value)
	if err != nil {
		return err
	}
	f.values[name] = url
	return nil
}

func (f *registryFlag) Type() string {
	return "stringArray"
}

func splitRegistry(value string) (string, string, error) {
	name, url, ok := strings.Cut(value, "=")
	if !ok || name == "" || url == "" {
		return "", "", fmt.Errorf("registry %q is not in name=url form", value)
	}
	return name, url, nil
}

// parseRegistries reads name=url entries from the environment.
func parseRegistries(values []string) (map[string]string, error) {
	entries := make(map[string]string)
	for _, value := range values {
		name, url, err := splitRegistry(value)
		if err != nil {
			return nil, err
		}
		entries[name] = url
	}
	return entries, nil
}
