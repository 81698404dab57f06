// Package docs provides the OpenAPI documentation served at /swagger.json.
//
// examtile API
//
//	@title			examtile API
//	@version		1.0
//	@description	Splits exam PDFs into page tiles and streams a multimodal model's answer for each tile.
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http https
package docs

//go:generate swag init -g ../cmd/examtile/serve.go -d ../ -o . --outputTypes go --parseInternal
