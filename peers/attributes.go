package peers

import "google.golang.org/grpc/attributes"

type metadataKey struct{}

// AttachMetadata stores server metadata in gRPC address attributes.
func AttachMetadata(attr *attributes.Attributes, md map[string]string) *attributes.Attributes {
	cp := make(map[string]string, len(md))
	for k, v := range md {
		cp[k] = v
	}
	return attr.WithValue(metadataKey{}, cp)
}

// MetadataFromAttributes extracts server metadata from gRPC address
// attributes, or nil when absent.
func MetadataFromAttributes(attr *attributes.Attributes) map[string]string {
	if attr == nil {
		return nil
	}
	md, _ := attr.Value(metadataKey{}).(map[string]string)
	return md
}
