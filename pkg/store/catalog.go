package store

import (
	"encoding/json"

	"github.com/hbdev/hbd-cli/pkg/entity"
	breverrors "github.com/hbdev/hbd-cli/pkg/errors"
	"github.com/spf13/afero"
)

// OperationCatalog maps operation name -> server type -> command template.
// The "*" type is the fallback for types without their own template.
// Templates may carry {self}, {peer}, {url} and {port} placeholders filled in
// by the operations layer.
type OperationCatalog map[string]map[string]string

const CatalogWildcardType = "*"

// Resolve picks the command template for an operation against a server type.
func (c OperationCatalog) Resolve(operation string, serverType entity.ServerType) (string, bool) {
	byType, ok := c[operation]
	if !ok {
		return "", false
	}
	if tmpl, ok := byType[string(serverType)]; ok {
		return tmpl, true
	}
	tmpl, ok := byType[CatalogWildcardType]
	return tmpl, ok
}

func defaultOperationCatalog() OperationCatalog {
	return OperationCatalog{
		"shutdown": {
			CatalogWildcardType: "sudo pkill -9 qemu-syst || true",
		},
		"verify_shutdown": {
			CatalogWildcardType: "pgrep -l qemu-syst || echo 'no guest processes found'",
		},
		"start_release": {
			"router":  "cd hb-os && ./run start_release --data-disk ../cache.img --self {self}:{port} --peer {self}:{port}",
			"compute": "cd hb-os && ./run start_release --data-disk ../cache.img --self {self}:{port} --peer {peer}:{port}",
		},
		"download_release": {
			CatalogWildcardType: "cd hb-os && sudo ./run download_release --url {url}",
		},
		"serve_release": {
			"build": "cd hb-os && nohup python3 -m http.server {port} > /dev/null 2>&1 &",
		},
		"stop_serving_release": {
			"build": "pkill -f 'python3 -m http.server {port}' || true",
		},
	}
}

// GetOperationCatalog returns the built-in catalog merged with any operator
// overrides from the catalog file. Overrides win per operation.
func (f FileStore) GetOperationCatalog() (OperationCatalog, error) {
	catalog := defaultOperationCatalog()
	path := f.config.GetCatalogPath()
	exists, err := afero.Exists(f.fs, path)
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}
	if !exists {
		return catalog, nil
	}
	data, err := afero.ReadFile(f.fs, path)
	if err != nil {
		return nil, breverrors.WrapAndTrace(err)
	}
	var overrides OperationCatalog
	err = json.Unmarshal(data, &overrides)
	if err != nil {
		return nil, breverrors.WrapAndTrace(err, "parsing operation catalog")
	}
	for op, byType := range overrides {
		catalog[op] = byType
	}
	return catalog, nil
}
