package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	datasetType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Dataset",
		Fields: graphql.Fields{
			"version":         &graphql.Field{Type: graphql.String},
			"source":          &graphql.Field{Type: graphql.String},
			"zones":           &graphql.Field{Type: graphql.Int},
			"regions":         &graphql.Field{Type: graphql.Int},
			"adjacency_pairs": &graphql.Field{Type: graphql.Int},
			"built_at":        &graphql.Field{Type: graphql.DateTime},
		},
	})

	stateType := graphql.NewObject(graphql.ObjectConfig{
		Name: "TimezoneState",
		Fields: graphql.Fields{
			"entity_id":     &graphql.Field{Type: graphql.String},
			"confirmed":     &graphql.Field{Type: graphql.String},
			"pending":       &graphql.Field{Type: graphql.String},
			"pending_count": &graphql.Field{Type: graphql.Int},
			"updated_at":    &graphql.Field{Type: graphql.DateTime},
		},
	})

	zoneType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Zone",
		Fields: graphql.Fields{
			"id":        &graphql.Field{Type: graphql.String},
			"regions":   &graphql.Field{Type: graphql.Int},
			"neighbors": &graphql.Field{Type: graphql.NewList(graphql.String)},
		},
	})

	transitionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Transition",
		Fields: graphql.Fields{
			"id":        &graphql.Field{Type: graphql.String},
			"entity_id": &graphql.Field{Type: graphql.String},
			"from_zone": &graphql.Field{Type: graphql.String},
			"to_zone":   &graphql.Field{Type: graphql.String},
			"location":  &graphql.Field{Type: geoPointType},
			"time":      &graphql.Field{Type: graphql.DateTime},
		},
	})

	zoneCountType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ZoneCount",
		Fields: graphql.Fields{
			"zone":  &graphql.Field{Type: graphql.String},
			"count": &graphql.Field{Type: graphql.Int},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"dataset": &graphql.Field{
				Type:        datasetType,
				Description: "The active boundary dataset",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					info, ok := deps.Datasets.Info()
					if !ok {
						return nil, nil
					}
					return info, nil
				},
			},
			"states": &graphql.Field{
				Type:        graphql.NewList(stateType),
				Description: "Confirmation state of every tracked entity",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Tracker.States(), nil
				},
			},
			"state": &graphql.Field{
				Type:        stateType,
				Description: "Confirmation state of one entity",
				Args: graphql.FieldConfigArgument{
					"entity_id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					entity := p.Args["entity_id"].(string)
					state, ok := deps.Tracker.State(entity)
					if !ok {
						return nil, nil
					}
					return state, nil
				},
			},
			"zone": &graphql.Field{
				Type:        zoneType,
				Description: "One timezone with its true-adjacency neighbors",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					ds := deps.Tracker.Dataset()
					if ds == nil {
						return nil, errors.New("no boundary dataset loaded")
					}
					id := p.Args["id"].(string)
					regions := ds.ZoneRegions(id)
					if len(regions) == 0 {
						return nil, nil
					}
					return map[string]interface{}{
						"id":        id,
						"regions":   len(regions),
						"neighbors": ds.NeighborZones(id),
					}, nil
				},
			},
			"zones": &graphql.Field{
				Type:        graphql.NewList(zoneType),
				Description: "Timezones in the active dataset",
				Args: graphql.FieldConfigArgument{
					"offset": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
					"limit":  &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 100},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					ds := deps.Tracker.Dataset()
					if ds == nil {
						return nil, errors.New("no boundary dataset loaded")
					}
					offset := p.Args["offset"].(int)
					limit := p.Args["limit"].(int)
					if offset < 0 {
						offset = 0
					}
					if limit <= 0 || limit > 500 {
						limit = 100
					}

					ids := ds.ZoneIDs()
					if offset >= len(ids) {
						return []map[string]interface{}{}, nil
					}
					end := offset + limit
					if end > len(ids) {
						end = len(ids)
					}

					result := make([]map[string]interface{}, 0, end-offset)
					for _, id := range ids[offset:end] {
						result = append(result, map[string]interface{}{
							"id":        id,
							"regions":   len(ds.ZoneRegions(id)),
							"neighbors": ds.NeighborZones(id),
						})
					}
					return result, nil
				},
			},
			"transitions": &graphql.Field{
				Type:        graphql.NewList(transitionType),
				Description: "Recent confirmed zone changes, newest first",
				Args: graphql.FieldConfigArgument{
					"entity_id": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
					"limit":     &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 50},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.Journal == nil {
						return nil, errors.New("transition journal not available")
					}
					entity := p.Args["entity_id"].(string)
					limit := p.Args["limit"].(int)
					return deps.Journal.Recent(p.Context, entity, limit)
				},
			},
			"transitionStats": &graphql.Field{
				Type:        graphql.NewList(zoneCountType),
				Description: "Confirmed zone changes per destination zone over a trailing window",
				Args: graphql.FieldConfigArgument{
					"hours": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 24},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if deps.Journal == nil {
						return nil, errors.New("transition journal not available")
					}
					hours := p.Args["hours"].(int)
					if hours <= 0 || hours > 8760 {
						hours = 24
					}
					since := time.Now().Add(-time.Duration(hours) * time.Hour)

					counts, err := deps.Journal.CountByZone(p.Context, since)
					if err != nil {
						return nil, err
					}
					result := make([]map[string]interface{}, 0, len(counts))
					for zone, n := range counts {
						result = append(result, map[string]interface{}{
							"zone":  zone,
							"count": n,
						})
					}
					return result, nil
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
