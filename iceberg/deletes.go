package iceberg

// Reserved field ids and names of the position-delete file schema.
const (
	DeleteFilePathID   = 2147483546
	DeleteFilePosID    = 2147483545
	DeleteFileRowID    = 2147483544
	DeleteFilePathName = "file_path"
	DeleteFilePosName  = "pos"
	DeleteFileRowName  = "row"
)

// PositionDeleteSchema returns the file_path, pos, row layout. The row
// struct is omitted when rowSchema is nil.
func PositionDeleteSchema(rowSchema *Schema) *Schema {
	fields := []NestedField{
		{ID: DeleteFilePathID, Name: DeleteFilePathName, Type: String, Required: true},
		{ID: DeleteFilePosID, Name: DeleteFilePosName, Type: Long, Required: true},
	}
	if rowSchema != nil {
		fields = append(fields, NestedField{
			ID:   DeleteFileRowID,
			Name: DeleteFileRowName,
			Type: rowSchema.AsStruct(),
		})
	}
	return &Schema{SchemaID: 0, Fields: fields}
}
