// Package oauth2core is a storage-agnostic OAuth 2.0 authorization server
// toolkit. The protocol engine lives in the server package and is independent
// of any HTTP stack; this package adds a thin net/http adapter around it.
//
// A minimal server:
//
//	store := memory.New()
//	srv, _ := server.New(store)
//	handler := oauth2core.NewHandler(srv, oauth2core.WithUserResolver(resolve))
//
//	mux := http.NewServeMux()
//	handler.Routes(mux)
//	log.Fatal(http.ListenAndServe(":8080", mux))
//
// The engine itself never reads *http.Request or writes to a ResponseWriter;
// it consumes server.Request values and produces server.Response values, so
// it plugs into chi, fasthttp or anything else with a few lines of glue. See
// the examples directory for complete programs.
package oauth2core
