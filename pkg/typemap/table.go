package typemap

func builtin() map[string]Mapping {
	return map[string]Mapping{
		"int2": {Kind: Integer, Format: "int16", Constraints: Constraints{Minimum: "-32768", Maximum: "32767"}},
		"int4": {Kind: Integer, Format: "int32", Constraints: Constraints{Minimum: "-2147483648", Maximum: "2147483647"}},
		"int8": {Kind: Integer, Format: "int64", Constraints: Constraints{Minimum: "-9223372036854775808", Maximum: "9223372036854775807"}},
		"oid":  {Kind: Integer, Format: "int64", Constraints: Constraints{Minimum: "0", Maximum: "4294967295"}},

		"numeric": {Kind: Decimal, Format: "decimal"},
		"money":   {Kind: Decimal, Format: "decimal", Constraints: Constraints{Scale: 2}},
		"float4":  {Kind: Float, Format: "float"},
		"float8":  {Kind: Float, Format: "double"},

		"bool": {Kind: Boolean},

		"text":     {Kind: String},
		"varchar":  {Kind: String},
		"bpchar":   {Kind: String, Constraints: Constraints{FixedLength: true}},
		"char":     {Kind: String, Constraints: Constraints{FixedLength: true, MaxLength: 1}},
		"name":     {Kind: String, Constraints: Constraints{MaxLength: 63}},
		"citext":   {Kind: String},
		"xml":      {Kind: String, Format: "xml"},
		"tsvector": {Kind: String, Format: "tsvector"},
		"bit":      {Kind: String, Format: "bit"},
		"varbit":   {Kind: String, Format: "bit"},

		"uuid": {Kind: UUID, Format: "uuid"},

		"json":  {Kind: JSON, Format: "json"},
		"jsonb": {Kind: JSON, Format: "json"},

		"bytea": {Kind: Binary, Format: "byte"},

		"date":        {Kind: Date, Format: "date"},
		"time":        {Kind: Time, Format: "time"},
		"timetz":      {Kind: Time, Format: "time", Constraints: Constraints{TimezoneAware: true}},
		"timestamp":   {Kind: Timestamp, Format: "date-time"},
		"timestamptz": {Kind: Timestamp, Format: "date-time", Constraints: Constraints{TimezoneAware: true}},
		"interval":    {Kind: Interval, Format: "interval"},

		"inet":     {Kind: Network, Format: "inet"},
		"cidr":     {Kind: Network, Format: "cidr"},
		"macaddr":  {Kind: Network, Format: "mac"},
		"macaddr8": {Kind: Network, Format: "mac"},
	}
}

func builtinAliases() map[string]string {
	return map[string]string{
		"smallint":                    "int2",
		"smallserial":                 "int2",
		"serial2":                     "int2",
		"integer":                     "int4",
		"int":                         "int4",
		"serial":                      "int4",
		"serial4":                     "int4",
		"bigint":                      "int8",
		"bigserial":                   "int8",
		"serial8":                     "int8",
		"decimal":                     "numeric",
		"real":                        "float4",
		"double precision":            "float8",
		"boolean":                     "bool",
		"character varying":           "varchar",
		"character":                   "bpchar",
		"\"char\"":                    "char",
		"bit varying":                 "varbit",
		"time without time zone":      "time",
		"time with time zone":         "timetz",
		"timestamp without time zone": "timestamp",
		"timestamp with time zone":    "timestamptz",
	}
}
