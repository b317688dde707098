package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/alim08/market_pulse/pkg/logger"
	"github.com/alim08/market_pulse/pkg/models"
	"github.com/graphql-go/graphql"
	"go.uber.org/zap"
)

type graphqlRequest struct {
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables"`
	OperationName string                 `json:"operationName"`
}

// createSchema exposes the same cached reads as the REST route.
func (s *Server) createSchema() (graphql.Schema, error) {
	priceType := graphql.NewObject(graphql.ObjectConfig{
		Name: "PriceSnapshot",
		Fields: graphql.Fields{
			"price": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Float),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(models.PriceSnapshot).Price, nil
				},
			},
			"volume": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Float),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(models.PriceSnapshot).Volume, nil
				},
			},
			"marketCap": &graphql.Field{
				Type: graphql.Float,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if mc := p.Source.(models.PriceSnapshot).MarketCap; mc != nil {
						return *mc, nil
					}
					return nil, nil
				},
			},
			"source": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return string(p.Source.(models.PriceSnapshot).Source), nil
				},
			},
		},
	})

	quoteType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Quote",
		Fields: graphql.Fields{
			"date": &graphql.Field{
				Type:        graphql.NewNonNull(graphql.String),
				Description: "RFC 3339 timestamp of the daily close",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(models.Quote).Date.UTC().Format(time.RFC3339), nil
				},
			},
			"close": &graphql.Field{
				Type: graphql.NewNonNull(graphql.Float),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(models.Quote).Close, nil
				},
			},
		},
	})

	historicalType := graphql.NewObject(graphql.ObjectConfig{
		Name: "HistoricalSeries",
		Fields: graphql.Fields{
			"source": &graphql.Field{
				Type: graphql.NewNonNull(graphql.String),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return string(p.Source.(models.HistoricalSeries).Source), nil
				},
			},
			"quotes": &graphql.Field{
				Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(quoteType))),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return p.Source.(models.HistoricalSeries).Quotes, nil
				},
			},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"current": &graphql.Field{
				Type: graphql.NewNonNull(priceType),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return s.market.CurrentPrice(p.Context), nil
				},
			},
			"historical": &graphql.Field{
				Type: graphql.NewNonNull(historicalType),
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return s.market.HistoricalSeries(p.Context), nil
				},
			},
		},
	})

	schema, err := graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
	if err != nil {
		return graphql.Schema{}, fmt.Errorf("failed to build graphql schema: %w", err)
	}
	return schema, nil
}

func (s *Server) graphqlHandler(w http.ResponseWriter, r *http.Request) {
	var req graphqlRequest
	switch r.Method {
	case http.MethodGet:
		req.Query = r.URL.Query().Get("query")
		req.OperationName = r.URL.Query().Get("operationName")
		if vars := r.URL.Query().Get("variables"); vars != "" {
			if err := json.Unmarshal([]byte(vars), &req.Variables); err != nil {
				writeError(w, http.StatusBadRequest, "Invalid variables")
				return
			}
		}
	default:
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid JSON payload")
			return
		}
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "Query is required")
		return
	}

	result := graphql.Do(graphql.Params{
		Schema:         s.schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        r.Context(),
	})
	if result.HasErrors() {
		logger.Log.Debug("graphql query returned errors",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.Int("errors", len(result.Errors)))
	}
	writeJSON(w, http.StatusOK, result)
}
