// Package dna packs a DNA source directory into the single-file DNA
// package JSON format and unpacks it back, round-tripping the on-disk
// layout through a __META__ section the way the original Rust CLI's
// Packager does.
package dna

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/holo/pkg/holoerr"
	"github.com/cuemby/holo/pkg/types"
)

const (
	metaFileID  = "file"
	metaDirID   = "dir"
	metaBinID   = "bin"
	metaSection = "__META__"
	metaTree    = "tree"
	metaConfig  = "config_file"

	wasmFileExtension = "wasm"
	propertiesOverlay = "properties.yaml"
)

// object is the JSON object shape the packager builds and unpacks,
// mirroring the original's serde_json::Map<String, Value>.
type object = map[string]interface{}

// Pack walks dir and produces the package-file bytes: a pretty-printed
// JSON document whose top level is the DNA's config file plus a
// __META__ section recording the directory layout. dir must contain
// exactly one top-level *.json file, which becomes the DNA config; any
// properties.yaml sibling is merged into the config's "properties" key
// before hashing.
func Pack(dir string) ([]byte, error) {
	tree, err := bundleRecurse(dir)
	if err != nil {
		return nil, err
	}
	if err := mergePropertiesOverlay(dir, tree); err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(tree, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: marshal dna package: %v", holoerr.ErrSerialization, err)
	}
	return data, nil
}

// bundleRecurse is the Go counterpart of Packager::bundle_recurse: it
// scans one directory level, treating the sole top-level *.json file
// (if any) as this node's config object, every other file as a
// base64-embedded blob, a directory holding a *.wasm file directly as
// compiled zome code ("bin"), and every other subdirectory as a nested
// object via recursion ("dir"). Every node visited is recorded in this
// level's meta tree so Unpack can reconstruct it.
func bundleRecurse(dir string) (object, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read dir %s: %v", holoerr.ErrIO, dir, err)
	}

	var configFile string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".json") {
			configFile = e.Name()
			break
		}
	}

	mainTree := object{}
	metaSec := object{}
	if configFile != "" {
		metaSec[metaConfig] = configFile
		raw, err := os.ReadFile(filepath.Join(dir, configFile))
		if err != nil {
			return nil, fmt.Errorf("%w: read config %s: %v", holoerr.ErrIO, configFile, err)
		}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &mainTree); err != nil {
				// Matches the original's "unparseable JSON -> empty
				// main_tree" fallback rather than failing the pack.
				mainTree = object{}
			}
		}
	}

	metaTreeObj := object{}
	for _, e := range entries {
		name := e.Name()
		if name == configFile {
			continue
		}
		full := filepath.Join(dir, name)

		if !e.IsDir() {
			raw, err := os.ReadFile(full)
			if err != nil {
				return nil, fmt.Errorf("%w: read file %s: %v", holoerr.ErrIO, full, err)
			}
			metaTreeObj[name] = metaFileID
			mainTree[name] = base64.StdEncoding.EncodeToString(raw)
			continue
		}

		wasmPath, isCode, err := findWasm(full)
		if err != nil {
			return nil, err
		}
		if isCode {
			content, err := os.ReadFile(wasmPath)
			if err != nil {
				return nil, fmt.Errorf("%w: read %s: %v", holoerr.ErrIO, wasmPath, err)
			}
			metaTreeObj[name] = metaBinID
			mainTree[name] = object{"code": base64.StdEncoding.EncodeToString(content)}
			continue
		}

		metaTreeObj[name] = metaDirID
		subTree, err := bundleRecurse(full)
		if err != nil {
			return nil, err
		}
		mainTree[name] = subTree
	}

	if len(metaTreeObj) > 0 {
		metaSec[metaTree] = metaTreeObj
	}
	if len(metaSec) > 0 {
		mainTree[metaSection] = metaSec
	}
	return mainTree, nil
}

// findWasm reports whether nodeDir is itself a compiled-code directory
// (holds a *.wasm file directly) and, if so, that file's path.
func findWasm(nodeDir string) (path string, isCode bool, err error) {
	entries, err := os.ReadDir(nodeDir)
	if err != nil {
		return "", false, fmt.Errorf("%w: read dir %s: %v", holoerr.ErrIO, nodeDir, err)
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), "."+wasmFileExtension) {
			return filepath.Join(nodeDir, e.Name()), true, nil
		}
	}
	return "", false, nil
}

// mergePropertiesOverlay folds dir/properties.yaml, if present, into
// tree's "properties" object, giving the overlay precedence over any
// properties already present in the JSON config.
func mergePropertiesOverlay(dir string, tree object) error {
	raw, err := os.ReadFile(filepath.Join(dir, propertiesOverlay))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("%w: read %s: %v", holoerr.ErrIO, propertiesOverlay, err)
	}
	var overlay map[string]interface{}
	if err := yaml.Unmarshal(raw, &overlay); err != nil {
		return fmt.Errorf("%w: parse %s: %v", holoerr.ErrConfig, propertiesOverlay, err)
	}
	props, _ := tree["properties"].(object)
	if props == nil {
		props = object{}
	}
	for k, v := range overlay {
		props[k] = v
	}
	tree["properties"] = props
	return nil
}

// Unpack reconstructs the directory tree packed at data into dir,
// creating dir if absent. It is the exact inverse of Pack's __META__
// normalization: file/dir/bin markers drive what each embedded value
// becomes on disk.
func Unpack(data []byte, dir string) error {
	var tree object
	if err := json.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("%w: parse dna package: %v", holoerr.ErrSerialization, err)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: create %s: %v", holoerr.ErrIO, dir, err)
	}
	return unpackRecurse(tree, dir)
}

func unpackRecurse(tree object, dir string) error {
	rawMeta, ok := tree[metaSection]
	if !ok {
		return nil
	}
	metaSec, ok := rawMeta.(object)
	if !ok {
		return fmt.Errorf("%w: __META__ section is not an object", holoerr.ErrConfig)
	}
	delete(tree, metaSection)

	if rawTree, ok := metaSec[metaTree]; ok {
		treeMeta, ok := rawTree.(object)
		if !ok {
			return fmt.Errorf("%w: __META__.tree section is not an object", holoerr.ErrConfig)
		}
		for _, name := range sortedObjectKeys(treeMeta) {
			kind, _ := treeMeta[name].(string)
			entry, ok := tree[name]
			if !ok {
				return fmt.Errorf("%w: incompatible meta section: missing %q", holoerr.ErrConfig, name)
			}
			delete(tree, name)
			if err := unpackEntry(kind, name, entry, dir); err != nil {
				return err
			}
		}
	}

	if rawConfig, ok := metaSec[metaConfig]; ok {
		configName, ok := rawConfig.(string)
		if !ok {
			return fmt.Errorf("%w: __META__.config_file is not a string", holoerr.ErrConfig)
		}
		if len(tree) > 0 {
			out, err := json.MarshalIndent(tree, "", "  ")
			if err != nil {
				return fmt.Errorf("%w: marshal config %s: %v", holoerr.ErrSerialization, configName, err)
			}
			if err := os.WriteFile(filepath.Join(dir, configName), out, 0644); err != nil {
				return fmt.Errorf("%w: write config %s: %v", holoerr.ErrIO, configName, err)
			}
		}
	}
	return nil
}

func unpackEntry(kind, name string, entry interface{}, dir string) error {
	switch kind {
	case metaFileID:
		encoded, ok := entry.(string)
		if !ok {
			return fmt.Errorf("%w: incompatible meta section: %q not a string", holoerr.ErrConfig, name)
		}
		content, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return fmt.Errorf("%w: decode %s: %v", holoerr.ErrSerialization, name, err)
		}
		return os.WriteFile(filepath.Join(dir, name), content, 0644)

	case metaBinID:
		obj, ok := entry.(object)
		if !ok {
			return fmt.Errorf("%w: incompatible meta section: %q not an object", holoerr.ErrConfig, name)
		}
		encoded, _ := obj["code"].(string)
		content, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return fmt.Errorf("%w: decode %s: %v", holoerr.ErrSerialization, name, err)
		}
		path := filepath.Join(dir, name+"."+wasmFileExtension)
		return os.WriteFile(path, content, 0644)

	case metaDirID:
		obj, ok := entry.(object)
		if !ok {
			return fmt.Errorf("%w: incompatible meta section: %q not an object", holoerr.ErrConfig, name)
		}
		subDir := filepath.Join(dir, name)
		if err := os.MkdirAll(subDir, 0755); err != nil {
			return fmt.Errorf("%w: create %s: %v", holoerr.ErrIO, subDir, err)
		}
		return unpackRecurse(obj, subDir)

	default:
		return fmt.Errorf("%w: incompatible meta section: unknown kind %q for %q", holoerr.ErrConfig, kind, name)
	}
}

func sortedObjectKeys(m object) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Load decodes a package file's bytes into a types.DNA, preserving any
// top-level keys other than the DNA's own fields (including __META__) under
// DNA.Meta so that Save can repack them unchanged.
func Load(data []byte) (*types.DNA, error) {
	var wire wireDNA
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("%w: parse dna package: %v", holoerr.ErrSerialization, err)
	}

	var known object
	_ = json.Unmarshal(data, &known)
	for _, k := range []string{"name", "description", "version", "uuid", "dna_spec_version", "properties", "zomes"} {
		delete(known, k)
	}

	d := &types.DNA{
		Name:           wire.Name,
		Description:    wire.Description,
		Version:        wire.Version,
		UUID:           wire.UUID,
		DNASpecVersion: wire.DNASpecVersion,
		Properties:     wire.Properties,
		Meta:           known,
	}
	for _, wz := range wire.Zomes {
		z, err := wz.toZome()
		if err != nil {
			return nil, err
		}
		d.Zomes = append(d.Zomes, z)
	}
	return d, nil
}

// Save encodes d back into package-file bytes, re-emitting d.Meta
// (including __META__) verbatim alongside the application fields.
func Save(d *types.DNA) ([]byte, error) {
	out := object{}
	for k, v := range d.Meta {
		out[k] = v
	}
	out["name"] = d.Name
	out["description"] = d.Description
	out["version"] = d.Version
	out["uuid"] = d.UUID
	out["dna_spec_version"] = d.DNASpecVersion
	out["properties"] = d.Properties

	zomes := make([]wireZome, 0, len(d.Zomes))
	for _, z := range d.Zomes {
		zomes = append(zomes, wireZomeOf(z))
	}
	out["zomes"] = zomes

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: marshal dna: %v", holoerr.ErrSerialization, err)
	}
	return data, nil
}

// wireDNA mirrors the package file's top-level application keys; see
// spec.md §6 and original_source/cli/src/cli/package.rs.
type wireDNA struct {
	Name           string                 `json:"name"`
	Description    string                 `json:"description"`
	Version        string                 `json:"version"`
	UUID           string                 `json:"uuid"`
	DNASpecVersion string                 `json:"dna_spec_version"`
	Properties     map[string]interface{} `json:"properties"`
	Zomes          []wireZome             `json:"zomes"`
}

type wireZome struct {
	Name           string               `json:"name"`
	Config         map[string]string    `json:"config"`
	EntryTypes     []wireEntryType      `json:"entry_types"`
	Traits         map[string]wireTrait `json:"traits"`
	FnDeclarations []wireFnDeclaration  `json:"fn_declarations"`
	Code           wireZomeCode         `json:"code"`
}

type wireZomeCode struct {
	Code string `json:"code"`
}

type wireEntryType struct {
	Name              string `json:"name"`
	ValidationPackage string `json:"validation_package"`
}

type wireTrait struct {
	Functions []string `json:"functions"`
}

type wireFnDeclaration struct {
	Name       string `json:"name"`
	Public     bool   `json:"public"`
	InputSpec  string `json:"input_spec,omitempty"`
	OutputSpec string `json:"output_spec,omitempty"`
}

func (wz wireZome) toZome() (types.Zome, error) {
	code, err := base64.StdEncoding.DecodeString(wz.Code.Code)
	if err != nil {
		return types.Zome{}, fmt.Errorf("%w: decode zome %q wasm: %v", holoerr.ErrSerialization, wz.Name, err)
	}
	z := types.Zome{
		Name:          wz.Name,
		Config:        wz.Config,
		EntryTypeDefs: make(map[string]types.ValidationPackageRequirement, len(wz.EntryTypes)),
		Traits:        make(map[string][]string, len(wz.Traits)),
		WasmCode:      code,
	}
	for _, et := range wz.EntryTypes {
		z.EntryTypes = append(z.EntryTypes, et.Name)
		z.EntryTypeDefs[et.Name] = types.ValidationPackageRequirement(et.ValidationPackage)
	}
	for name, t := range wz.Traits {
		z.Traits[name] = t.Functions
	}
	for _, fd := range wz.FnDeclarations {
		z.FnDeclarations = append(z.FnDeclarations, types.FnDeclaration{
			Name:       fd.Name,
			Public:     fd.Public,
			InputSpec:  fd.InputSpec,
			OutputSpec: fd.OutputSpec,
		})
	}
	return z, nil
}

func wireZomeOf(z types.Zome) wireZome {
	wz := wireZome{
		Name:   z.Name,
		Config: z.Config,
		Traits: make(map[string]wireTrait, len(z.Traits)),
		Code:   wireZomeCode{Code: base64.StdEncoding.EncodeToString(z.WasmCode)},
	}
	for _, name := range z.EntryTypes {
		wz.EntryTypes = append(wz.EntryTypes, wireEntryType{
			Name:              name,
			ValidationPackage: string(z.EntryTypeDefs[name]),
		})
	}
	for name, fns := range z.Traits {
		wz.Traits[name] = wireTrait{Functions: fns}
	}
	for _, fd := range z.FnDeclarations {
		wz.FnDeclarations = append(wz.FnDeclarations, wireFnDeclaration{
			Name:       fd.Name,
			Public:     fd.Public,
			InputSpec:  fd.InputSpec,
			OutputSpec: fd.OutputSpec,
		})
	}
	return wz
}
