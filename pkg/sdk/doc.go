// Package fedsearch is a Go client for the fedsearch HTTP API.
//
// A search is submitted once and then polled. Every poll returns the results
// gathered so far; a response with Complete set is final.
//
//	client, _ := fedsearch.New("http://localhost:8080", fedsearch.WithAPIKey(key))
//	key, _ := client.Submit(ctx, fedsearch.Request{
//	    DataSource: fedsearch.DataSource(dsUUID),
//	    Expression: fedsearch.And(fedsearch.Term("UserId", fedsearch.Equals, "user5")),
//	    Tables: []fedsearch.Table{{
//	        ComponentID:   "users",
//	        Columns:       []fedsearch.Column{{Name: "user", Field: "UserId"}},
//	        ExtractValues: true,
//	        Pipeline:      fedsearch.Pipeline(pipelineUUID),
//	    }},
//	})
//	res, _ := client.Wait(ctx, key)
//
// Node failures never fail a search: they are reported per node in Response.Errors.
package fedsearch
