// Package api is the daemon's gRPC control API.
//
// The services are declared by hand as grpc.ServiceDesc values and carry
// JSON bodies through a registered "json" codec instead of protobuf
// generated stubs, so the module builds without protoc or checked-in
// generated code. Every method keeps the unary and server-streaming shape
// a .proto would give it.
package api
