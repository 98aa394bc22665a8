package provision

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/edvin/clientops/internal/model"
)

const clientsAttr = "clients"

// Declarations edits the clients map in the tofu variables file. Edits
// touch only the bytes of the entry concerned.
type Declarations struct {
	path string
	mu   sync.Mutex
}

func NewDeclarations(path string) *Declarations {
	return &Declarations{path: path}
}

func (d *Declarations) Path() string { return d.path }

// List returns every declared client.
func (d *Declarations) List() (map[string]model.Declaration, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.read()
}

// Names returns the declared client names in sorted order.
func (d *Declarations) Names() ([]string, error) {
	all, err := d.List()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(all))
	for n := range all {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (d *Declarations) Has(name string) (bool, error) {
	all, err := d.List()
	if err != nil {
		return false, err
	}
	_, ok := all[name]
	return ok, nil
}

// Get returns a client's declaration. A missing entry is a
// MissingDeclaration precondition whose remedy is the suggested snippet.
func (d *Declarations) Get(name string) (model.Declaration, error) {
	all, err := d.List()
	if err != nil {
		return model.Declaration{}, err
	}
	decl, ok := all[name]
	if !ok {
		return model.Declaration{}, &model.PreconditionError{
			Kind:   model.MissingDeclaration,
			Client: name,
			Detail: fmt.Sprintf("no entry in %s", d.path),
			Remedy: "add to the clients map:\n" + Render(name, model.SuggestDeclaration(name)),
		}
	}
	return decl, nil
}

// Add appends a new client entry. It fails if the client is already declared.
func (d *Declarations) Add(name string, decl model.Declaration) error {
	if err := model.ValidateClientName(name); err != nil {
		return err
	}
	if err := model.Validate(decl); err != nil {
		return err
	}
	return d.edit(func(doc *document, all map[string]model.Declaration) ([]splice, error) {
		if _, ok := all[name]; ok {
			return nil, fmt.Errorf("client %s is already declared in %s", name, d.path)
		}
		return []splice{doc.insert(name, decl)}, nil
	})
}

// Set updates an existing client entry in place. Attributes and comments
// the declaration does not model are kept.
func (d *Declarations) Set(name string, decl model.Declaration) error {
	if err := model.ValidateClientName(name); err != nil {
		return err
	}
	if err := model.Validate(decl); err != nil {
		return err
	}
	return d.edit(func(doc *document, all map[string]model.Declaration) ([]splice, error) {
		current, ok := all[name]
		if !ok {
			return nil, fmt.Errorf("client %s is not declared in %s", name, d.path)
		}
		return doc.update(name, current, decl), nil
	})
}

// Remove deletes a client entry. It reports whether the entry existed.
func (d *Declarations) Remove(name string) (bool, error) {
	if err := model.ValidateClientName(name); err != nil {
		return false, err
	}
	var removed bool
	err := d.edit(func(doc *document, all map[string]model.Declaration) ([]splice, error) {
		if _, removed = all[name]; !removed {
			return nil, nil
		}
		return []splice{doc.remove(name)}, nil
	})
	return removed, err
}

// Render formats a single clients map entry as HCL.
func Render(name string, decl model.Declaration) string {
	f := hclwrite.NewEmptyFile()
	f.Body().SetAttributeValue(name, declarationValue(decl))
	return string(hclwrite.Format(f.Bytes()))
}

func (d *Declarations) load() ([]byte, error) {
	src, err := os.ReadFile(d.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", d.path, err)
	}
	return src, nil
}

func (d *Declarations) read() (map[string]model.Declaration, error) {
	src, err := d.load()
	if err != nil {
		return nil, err
	}
	return parseClients(src, d.path)
}

// edit applies the splices fn computes to the file. Only the bytes of the
// touched entry change.
func (d *Declarations) edit(fn func(doc *document, all map[string]model.Declaration) ([]splice, error)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	src, err := d.load()
	if err != nil {
		return err
	}
	all, err := parseClients(src, d.path)
	if err != nil {
		return err
	}
	doc, err := parseDocument(src, d.path)
	if err != nil {
		return err
	}
	edits, err := fn(doc, all)
	if err != nil || len(edits) == 0 {
		return err
	}

	out := applySplices(src, edits)
	if _, err := parseClients(out, d.path); err != nil {
		return fmt.Errorf("edit produced invalid %s: %w", d.path, err)
	}
	return os.WriteFile(d.path, out, 0o644)
}

func parseClients(src []byte, filename string) (map[string]model.Declaration, error) {
	out := map[string]model.Declaration{}
	if len(src) == 0 {
		return out, nil
	}

	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %s: %s", filename, diags.Error())
	}
	attrs, diags := file.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %s: %s", filename, diags.Error())
	}
	attr, ok := attrs[clientsAttr]
	if !ok {
		return out, nil
	}

	val, diags := attr.Expr.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("evaluate %s in %s: %s", clientsAttr, filename, diags.Error())
	}
	if val.IsNull() {
		return out, nil
	}
	if !val.Type().IsObjectType() && !val.Type().IsMapType() {
		return nil, fmt.Errorf("%s in %s must be a map", clientsAttr, filename)
	}

	for it := val.ElementIterator(); it.Next(); {
		k, v := it.Element()
		decl, err := decodeDeclaration(v)
		if err != nil {
			return nil, fmt.Errorf("client %s: %w", k.AsString(), err)
		}
		out[k.AsString()] = decl
	}
	return out, nil
}

func decodeDeclaration(v cty.Value) (model.Declaration, error) {
	var decl model.Declaration
	if !v.Type().IsObjectType() {
		return decl, fmt.Errorf("entry must be an object")
	}

	str := func(name string) (string, error) {
		if !v.Type().HasAttribute(name) {
			return "", nil
		}
		var s string
		err := gocty.FromCtyValue(v.GetAttr(name), &s)
		return s, err
	}

	var err error
	if decl.ServerType, err = str("server_type"); err != nil {
		return decl, fmt.Errorf("server_type: %w", err)
	}
	if decl.Location, err = str("location"); err != nil {
		return decl, fmt.Errorf("location: %w", err)
	}
	if decl.Subdomain, err = str("subdomain"); err != nil {
		return decl, fmt.Errorf("subdomain: %w", err)
	}

	if v.Type().HasAttribute("apps") {
		apps := v.GetAttr("apps")
		if !apps.CanIterateElements() {
			return decl, fmt.Errorf("apps must be a list")
		}
		for it := apps.ElementIterator(); it.Next(); {
			_, a := it.Element()
			var s string
			if err := gocty.FromCtyValue(a, &s); err != nil {
				return decl, fmt.Errorf("apps: %w", err)
			}
			decl.Apps = append(decl.Apps, s)
		}
	}

	if v.Type().HasAttribute("nextcloud_volume_size") {
		if err := gocty.FromCtyValue(v.GetAttr("nextcloud_volume_size"), &decl.VolumeSize); err != nil {
			return decl, fmt.Errorf("nextcloud_volume_size: %w", err)
		}
	}
	return decl, nil
}

// declarationAttrs lists the modelled attributes in rendering order.
func declarationAttrs(decl model.Declaration) []attrValue {
	apps := cty.ListValEmpty(cty.String)
	if len(decl.Apps) > 0 {
		vals := make([]cty.Value, len(decl.Apps))
		for i, a := range decl.Apps {
			vals[i] = cty.StringVal(a)
		}
		apps = cty.ListVal(vals)
	}
	return []attrValue{
		{"server_type", cty.StringVal(decl.ServerType)},
		{"location", cty.StringVal(decl.Location)},
		{"subdomain", cty.StringVal(decl.Subdomain)},
		{"apps", apps},
		{"nextcloud_volume_size", cty.NumberIntVal(int64(decl.VolumeSize))},
	}
}

type attrValue struct {
	name string
	val  cty.Value
}

func declarationValue(decl model.Declaration) cty.Value {
	attrs := map[string]cty.Value{}
	for _, a := range declarationAttrs(decl) {
		attrs[a.name] = a.val
	}
	return cty.ObjectVal(attrs)
}
