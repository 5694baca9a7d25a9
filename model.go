package colstore

import "reflect"

// Table is embedded in an entity struct to carry table level tags:
//
//	type Person struct {
//		colstore.Table `table:"person" family:"info" policy:"assign_id"`
//		ID   int64  `col:"id,key"`
//		Name string `col:"name"`
//	}
type Table struct{}

var tableMarkerType = reflect.TypeOf(Table{})

// TableDef holds the table level mapping of an entity.
type TableDef struct {
	Name      string
	Family    string
	KeyPolicy KeyPolicy
}

// Model lets an entity provide its TableDef in code instead of tags.
type Model interface {
	GetTableDef() TableDef
}

func applyTableDef(desc *EntityDescriptor, def TableDef) {
	if def.Name != "" {
		desc.Table = def.Name
	}
	if def.Family != "" {
		desc.Family = def.Family
	}
	if def.KeyPolicy != "" {
		desc.KeyPolicy = def.KeyPolicy
	}
}
