package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/aaronvogel/hass-timezone-updater/internal/core/domain"
	"github.com/aaronvogel/hass-timezone-updater/internal/core/usecases"
)

// positionRequest is the JSON body accepted by the evaluate and
// position-enqueue endpoints. Latitude and longitude are pointers so a
// missing field is distinguishable from a legitimate zero value.
type positionRequest struct {
	EntityID string   `json:"entity_id"`
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
	Heading  *float64 `json:"heading"`
	Speed    *float64 `json:"speed"`
}

// parsePosition reads and validates a position payload. On failure it writes
// the 400 response and returns it as the handler's error value.
func parsePosition(c *fiber.Ctx) (*domain.PositionSample, error) {
	var req positionRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, errBadRequest(c, "invalid JSON body")
	}
	if req.Lat == nil || req.Lon == nil {
		return nil, errBadRequest(c, "lat and lon are required")
	}
	if *req.Lat < -90 || *req.Lat > 90 || *req.Lon < -180 || *req.Lon > 180 {
		return nil, errBadRequest(c, "latitude or longitude out of range")
	}
	return &domain.PositionSample{
		EntityID: req.EntityID,
		Location: domain.GeoPoint{Lat: *req.Lat, Lon: *req.Lon},
		Heading:  req.Heading,
		Speed:    req.Speed,
	}, nil
}

// EvaluateHandler runs one position sample through the engine synchronously
// and returns the full evaluation, including the next poll interval.
func EvaluateHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		sample, errResp := parsePosition(c)
		if errResp != nil {
			return errResp
		}

		eval, err := deps.Tracker.Evaluate(c.UserContext(), sample)
		if err != nil {
			switch {
			case errors.Is(err, domain.ErrNoDataset):
				return errUnavailable(c, "no boundary dataset loaded")
			case errors.Is(err, domain.ErrInvalidSample):
				return errBadRequest(c, err.Error())
			default:
				return errInternal(c, err.Error())
			}
		}

		if eval.ZoneChanged {
			LoggerFromCtx(c.UserContext()).Info("timezone change confirmed",
				"entity", eval.EntityID, "zone", eval.ConfirmedZone)
		}

		return c.JSON(eval)
	}
}

// EnqueuePositionHandler accepts a position sample and hands it to the
// broker for asynchronous evaluation. Clients that do not need the
// evaluation result get a fast 202 here instead of waiting on the engine.
func EnqueuePositionHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Publisher == nil {
			return errUnavailable(c, "event broker not available")
		}

		sample, errResp := parsePosition(c)
		if errResp != nil {
			return errResp
		}
		sample.Time = time.Now().UTC()

		if err := deps.Publisher.PublishPositionSample(c.UserContext(), sample); err != nil {
			return errInternal(c, err.Error())
		}

		resp := fiber.Map{"status": "queued"}
		if sample.EntityID != "" {
			resp["entity_id"] = sample.EntityID
		}
		return c.Status(202).JSON(resp)
	}
}

// ListStatesHandler returns the confirmation state of every tracked entity.
func ListStatesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		states := deps.Tracker.States()
		if states == nil {
			states = []domain.TimezoneState{}
		}
		return c.JSON(states)
	}
}

// GetStateHandler returns the confirmation state of one entity.
func GetStateHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		entity := c.Params("entity")
		state, ok := deps.Tracker.State(entity)
		if !ok {
			return errNotFound(c, "entity not tracked: "+entity)
		}
		return c.JSON(state)
	}
}

// ZoneSummary is one row of the zone listing.
type ZoneSummary struct {
	ID        string `json:"id"`
	Regions   int    `json:"regions"`
	Neighbors int    `json:"neighbors"`
}

// ZoneDetail describes a single timezone in the active dataset.
type ZoneDetail struct {
	ID             string   `json:"id"`
	Regions        int      `json:"regions"`
	Neighbors      []string `json:"neighbors"`
	DatasetVersion string   `json:"dataset_version"`
}

// ListZonesHandler returns the timezones in the active dataset.
func ListZonesHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ds := deps.Tracker.Dataset()
		if ds == nil {
			return errUnavailable(c, "no boundary dataset loaded")
		}

		ids := ds.ZoneIDs()

		// Apply offset/limit pagination on the full list
		offset := c.QueryInt("offset", 0)
		limit := c.QueryInt("limit", 100)
		if offset < 0 {
			offset = 0
		}
		if limit <= 0 || limit > 500 {
			limit = 100
		}

		total := len(ids)
		page := ids
		if offset >= total {
			page = nil
		} else {
			end := offset + limit
			if end > total {
				end = total
			}
			page = ids[offset:end]
		}

		summaries := make([]ZoneSummary, 0, len(page))
		for _, id := range page {
			summaries = append(summaries, ZoneSummary{
				ID:        id,
				Regions:   len(ds.ZoneRegions(id)),
				Neighbors: len(ds.NeighborZones(id)),
			})
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		c.Set("Cache-Control", "public, max-age=3600")
		return c.JSON(PaginatedResponse{Data: summaries, Pagination: pg})
	}
}

// GetZoneHandler returns one timezone with its true-adjacency neighbors.
// Zone identifiers contain slashes, so the route captures the remainder of
// the path as a wildcard.
func GetZoneHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ds := deps.Tracker.Dataset()
		if ds == nil {
			return errUnavailable(c, "no boundary dataset loaded")
		}

		zone := c.Params("+")
		regions := ds.ZoneRegions(zone)
		if len(regions) == 0 {
			return errNotFound(c, "unknown timezone: "+zone)
		}

		neighbors := ds.NeighborZones(zone)
		if neighbors == nil {
			neighbors = []string{}
		}

		c.Set("Cache-Control", "public, max-age=3600")
		return c.JSON(ZoneDetail{
			ID:             zone,
			Regions:        len(regions),
			Neighbors:      neighbors,
			DatasetVersion: ds.Version(),
		})
	}
}

// ListTransitionsHandler returns recent confirmed zone changes from the
// journal, newest first. An entity query narrows to one tracker.
func ListTransitionsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Journal == nil {
			return errUnavailable(c, "transition journal not available")
		}

		entity := c.Query("entity")
		limit := c.QueryInt("limit", 50)

		transitions, err := deps.Journal.Recent(c.UserContext(), entity, limit)
		if err != nil {
			return errInternal(c, err.Error())
		}
		if transitions == nil {
			transitions = []domain.ZoneTransition{}
		}

		return c.JSON(transitions)
	}
}

// TransitionStats aggregates journal rows per destination zone.
type TransitionStats struct {
	Since  time.Time      `json:"since"`
	Total  int            `json:"total"`
	ByZone map[string]int `json:"by_zone"`
}

// TransitionStatsHandler counts confirmed zone changes per destination zone
// over a trailing window.
func TransitionStatsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if deps.Journal == nil {
			return errUnavailable(c, "transition journal not available")
		}

		hours := c.QueryInt("hours", 24)
		if hours <= 0 || hours > 8760 {
			hours = 24
		}
		since := time.Now().Add(-time.Duration(hours) * time.Hour)

		counts, err := deps.Journal.CountByZone(c.UserContext(), since)
		if err != nil {
			return errInternal(c, err.Error())
		}

		total := 0
		for _, n := range counts {
			total += n
		}

		c.Set("Cache-Control", "public, max-age=60")
		return c.JSON(TransitionStats{Since: since, Total: total, ByZone: counts})
	}
}

// GetDatasetHandler describes the active boundary dataset.
func GetDatasetHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		info, ok := deps.Datasets.Info()
		if !ok {
			return errNotFound(c, "no dataset loaded")
		}
		return c.JSON(info)
	}
}

// ReloadDatasetHandler recompiles the dataset from the file on disk. The
// previous dataset stays active if the file is unreadable or malformed.
func ReloadDatasetHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		info, err := deps.Datasets.Reload(c.UserContext())
		if err != nil {
			if errors.Is(err, usecases.ErrReloadBusy) {
				return errConflict(c, err.Error())
			}
			return errBadRequest(c, err.Error())
		}
		return c.JSON(info)
	}
}

// RefreshDatasetHandler downloads a fresh boundary archive, installs it and
// recompiles. Downloads take a while; the route is registered with a long
// timeout.
func RefreshDatasetHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		info, err := deps.Datasets.Refresh(c.UserContext())
		if err != nil {
			if errors.Is(err, usecases.ErrReloadBusy) {
				return errConflict(c, err.Error())
			}
			return errInternal(c, err.Error())
		}
		return c.JSON(info)
	}
}
