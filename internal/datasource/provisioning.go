package datasource

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// provisioningFile is the layout of one provisioning YAML file:
//
//	apiVersion: 1
//	datasources:
//	  - name: warehouse
//	    type: duckdb
//	    database: ./warehouse.duckdb
//	deleteDatasources:
//	  - name: old
//	    org_id: 1
type provisioningFile struct {
	APIVersion        int               `yaml:"apiVersion"`
	Datasources       []Settings        `yaml:"datasources"`
	DeleteDatasources []deleteReference `yaml:"deleteDatasources"`
}

type deleteReference struct {
	Name  string `yaml:"name"`
	OrgID int64  `yaml:"org_id"`
}

// IsProvisioningFile reports whether path has a YAML extension.
func IsProvisioningFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadProvisioning reads every YAML file of dir in name order. Environment
// variables ($VAR or ${VAR}) are expanded before parsing. A missing
// directory yields no datasources. Deletions apply to datasources declared
// by earlier files and to base.
func LoadProvisioning(dir string, base []Settings) ([]Settings, error) {
	if dir == "" {
		return base, nil
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return base, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read provisioning dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && IsProvisioningFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	slices.Sort(names)

	out := slices.Clone(base)
	for _, name := range names {
		path := filepath.Join(dir, name)
		file, err := parseProvisioningFile(path)
		if err != nil {
			return nil, err
		}
		for _, del := range file.DeleteDatasources {
			out = slices.DeleteFunc(out, func(s Settings) bool {
				return strings.EqualFold(s.Name, del.Name) && orgOf(s) == orgOf(Settings{OrgID: del.OrgID})
			})
		}
		out = Merge(out, file.Datasources)
	}
	return out, nil
}

func parseProvisioningFile(path string) (provisioningFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return provisioningFile{}, fmt.Errorf("read %s: %w", path, err)
	}
	expanded := os.ExpandEnv(string(data))

	var file provisioningFile
	dec := yaml.NewDecoder(bytes.NewBufferString(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return provisioningFile{}, nil
		}
		return provisioningFile{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if file.APIVersion > 1 {
		return provisioningFile{}, fmt.Errorf("%s: unsupported apiVersion %d", path, file.APIVersion)
	}
	return file, nil
}
