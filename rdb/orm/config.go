package orm

import (
	"sort"

	"github.com/hatlonely/ormx/ref"
	"github.com/hatlonely/ormx/uid"
	"github.com/pkg/errors"
)

// TableOptions 配置文件中声明的表，只包含可以用数据描述的部分
// 作用域、钩子和解析函数需要在代码中通过 Define 补充
type TableOptions struct {
	Name    string `cfg:"name" validate:"required"`
	Key     string `cfg:"key" def:"id"`
	KeyMode string `cfg:"keyMode" def:"generated" validate:"omitempty,oneof=generated autoIncrement autoUUID"`
	// KeyMode 为 none 时的主键生成器，默认 uuid
	KeyGenerator *ref.TypeOptions `cfg:"keyGenerator"`
	PerPage      int              `cfg:"perPage" def:"25" validate:"gte=0"`

	Timestamps bool   `cfg:"timestamps"`
	CreatedAt  string `cfg:"createdAt" def:"created_at"`
	UpdatedAt  string `cfg:"updatedAt" def:"updated_at"`

	Relations map[string]*RelationOptions `cfg:"relations" validate:"dive"`
}

// RelationOptions 各种关联用到的字段不同：
//
//	hasOne, hasMany:  related, foreignKey, key
//	belongsTo:        related, foreignKey, otherKey
//	hasManyThrough:   related, through, firstKey, secondKey
//	belongsToMany:    related, pivot, foreignKey, otherKey
//	morphOne, morphMany: related, inverse
//	morphTo:          tables, typeField, foreignKey
type RelationOptions struct {
	Kind       string   `cfg:"kind" validate:"required,oneof=hasOne hasMany belongsTo hasManyThrough belongsToMany morphOne morphMany morphTo"`
	Related    string   `cfg:"related"`
	ForeignKey string   `cfg:"foreignKey"`
	Key        string   `cfg:"key"`
	OtherKey   string   `cfg:"otherKey"`
	Through    string   `cfg:"through"`
	FirstKey   string   `cfg:"firstKey"`
	SecondKey  string   `cfg:"secondKey"`
	Pivot      string   `cfg:"pivot"`
	Inverse    string   `cfg:"inverse"`
	Tables     []string `cfg:"tables"`
	TypeField  string   `cfg:"typeField"`
}

func ParseKeyMode(mode string) (KeyMode, error) {
	switch mode {
	case "", "generated":
		return KeyGenerated, nil
	case "autoIncrement":
		return KeyAutoIncrement, nil
	case "autoUUID":
		return KeyAutoUUID, nil
	}
	return KeyGenerated, errors.Errorf("unknown key mode %q", mode)
}

// Definition 转换为表声明
func (o *TableOptions) Definition() (*Definition, error) {
	if o == nil {
		return nil, errors.New("table options is nil")
	}
	if o.Name == "" {
		return nil, errors.New("table name is required")
	}

	keyMode, err := ParseKeyMode(o.KeyMode)
	if err != nil {
		return nil, errors.WithMessagef(err, "table %s", o.Name)
	}

	var keyGenerator uid.KeyGenerator
	if o.KeyGenerator != nil {
		if keyGenerator, err = uid.NewKeyGeneratorWithOptions(o.KeyGenerator); err != nil {
			return nil, errors.WithMessagef(err, "table %s: create key generator failed", o.Name)
		}
	}

	def := &Definition{
		Name:         o.Name,
		Key:          o.Key,
		KeyMode:      keyMode,
		KeyGenerator: keyGenerator,
		PerPage:      o.PerPage,
		Timestamps:   o.Timestamps,
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
	if len(o.Relations) > 0 {
		def.Relations = make(map[string]RelationFunc, len(o.Relations))
		for name, relationOptions := range o.Relations {
			fn, err := relationOptions.RelationFunc()
			if err != nil {
				return nil, errors.WithMessagef(err, "table %s: relation %s", o.Name, name)
			}
			def.Relations[name] = fn
		}
	}
	return def, nil
}

func requireFields(kind string, fields map[string]string) error {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if fields[name] == "" {
			return errors.Errorf("%s requires %s", kind, name)
		}
	}
	return nil
}

// RelationFunc 校验所需字段后返回关联的构造函数
func (o *RelationOptions) RelationFunc() (RelationFunc, error) {
	if o == nil {
		return nil, errors.New("relation options is nil")
	}
	r := *o

	switch r.Kind {
	case "hasOne", "hasMany":
		if err := requireFields(r.Kind, map[string]string{"related": r.Related, "foreignKey": r.ForeignKey}); err != nil {
			return nil, err
		}
		many := r.Kind == "hasMany"
		return func(t *Table) Relation {
			return newHasOneOrMany(t, r.Related, r.ForeignKey, r.Key, many)
		}, nil
	case "belongsTo":
		if err := requireFields(r.Kind, map[string]string{"related": r.Related, "foreignKey": r.ForeignKey}); err != nil {
			return nil, err
		}
		return func(t *Table) Relation {
			return BelongsTo(t, r.Related, r.ForeignKey, r.OtherKey)
		}, nil
	case "hasManyThrough":
		if err := requireFields(r.Kind, map[string]string{"related": r.Related, "through": r.Through, "firstKey": r.FirstKey, "secondKey": r.SecondKey}); err != nil {
			return nil, err
		}
		return func(t *Table) Relation {
			return HasManyThrough(t, r.Related, r.Through, r.FirstKey, r.SecondKey)
		}, nil
	case "belongsToMany":
		if err := requireFields(r.Kind, map[string]string{"related": r.Related, "pivot": r.Pivot, "foreignKey": r.ForeignKey, "otherKey": r.OtherKey}); err != nil {
			return nil, err
		}
		return func(t *Table) Relation {
			return BelongsToMany(t, r.Related, r.Pivot, r.ForeignKey, r.OtherKey)
		}, nil
	case "morphOne", "morphMany":
		if err := requireFields(r.Kind, map[string]string{"related": r.Related, "inverse": r.Inverse}); err != nil {
			return nil, err
		}
		many := r.Kind == "morphMany"
		return func(t *Table) Relation {
			return newMorphOneOrMany(t, r.Related, r.Inverse, many)
		}, nil
	case "morphTo":
		if len(r.Tables) == 0 {
			return nil, errors.New("morphTo requires tables")
		}
		if err := requireFields(r.Kind, map[string]string{"typeField": r.TypeField, "foreignKey": r.ForeignKey}); err != nil {
			return nil, err
		}
		tables := append([]string(nil), r.Tables...)
		return func(t *Table) Relation {
			return MorphTo(t, tables, r.TypeField, r.ForeignKey)
		}, nil
	}
	return nil, errors.Errorf("unknown relation kind %q", r.Kind)
}
