package server

import (
	"bytes"
	"strconv"

	"github.com/goccy/go-json"
	fiber "github.com/gofiber/fiber/v3"
	"github.com/hyp3rd/ewrap"

	"perfstore/internal/chart"
	"perfstore/internal/compare"
	"perfstore/internal/core"
	"perfstore/internal/sentinel"
)

const (
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	contentTypePNG  = "image/png"
	contentTypeSVG  = "image/svg+xml"
)

func (s *Server) mountRoutes(r fiber.Router) {
	r.Get("/health", func(c fiber.Ctx) error { return c.SendString("ok") })

	r.Get("/cases", s.listCases)
	r.Post("/cases", s.createCase)
	r.Get("/cases/:id", s.getCase)
	r.Get("/cases/:id/runs", s.listRuns)
	r.Get("/cases/:id/runs/json", s.runsSummary)
	r.Post("/cases/:id/runs", s.createRun)

	r.Get("/runs/:id", s.getRun)
	r.Post("/runs/:id/status", s.setStatus)
	r.Post("/runs/:id/baseline", s.setBaseline)
	r.Get("/runs/:id/jobs", s.listJobs)
	r.Post("/runs/:id/jobs", s.createJob)
	r.Get("/runs/:id/operations", s.operations)
	r.Get("/runs/:ids/common-operations", s.commonOperations)
	r.Get("/runs/:id/aggregate/:op", s.aggregate)
	r.Get("/runs/:id/aggregate/:op/chart/:kind.png", s.chart(chart.PNG))
	r.Get("/runs/:id/aggregate/:op/chart/:kind.svg", s.chart(chart.SVG))
	r.Get("/runs/:id/regression/:threshold", s.regression)
	r.Get("/runs/:id/monitor", s.listMonitorLogs)
	r.Post("/runs/:id/monitor/:host/:type", s.addMonitorLog)

	r.Get("/jobs/:id", s.getJob)
	r.Get("/jobs/:id/outputs", s.listOutputs)
	r.Post("/jobs/:id/outputs/:op", s.addOutput)

	r.Get("/outputs/:id", s.getOutput)
	r.Get("/outputs/:id/text", s.outputText)
	r.Get("/outputs/:id/hdr", s.outputHdr)
	r.Get("/outputs/:id/verify", s.verifyOutput)

	r.Get("/monitor/:id/text", s.monitorLogText)

	r.Get("/compare/:ids/:op", s.compare)
	r.Get("/compare/:ids/:op/xlsx", s.compareXLSX)
}

func decode(c fiber.Ctx, v any) error {
	if err := json.Unmarshal(c.Body(), v); err != nil {
		return ewrap.Wrapf(sentinel.ErrInvalidArgument, "request body: %v", err)
	}

	return nil
}

type caseRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) listCases(c fiber.Ctx) error {
	cases, err := s.store.ListCases(c.Context())
	if err != nil {
		return err
	}

	return c.JSON(cases)
}

func (s *Server) createCase(c fiber.Ctx) error {
	var req caseRequest
	if err := decode(c, &req); err != nil {
		return err
	}

	created, err := s.store.CreateCase(c.Context(), req.Name, req.Description)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (s *Server) getCase(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	found, err := s.store.GetCase(c.Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(found)
}

func (s *Server) listRuns(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	runs, err := s.store.ListRuns(c.Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(runs)
}

type runValue struct {
	Status   core.RunStatus `json:"status"`
	Baseline bool           `json:"baseline"`
}

type runSummary struct {
	ID      int64    `json:"id"`
	Created int64    `json:"created"`
	Value   runValue `json:"value"`
}

// runsSummary serves the compact run list used by the dashboard tables.
func (s *Server) runsSummary(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	runs, err := s.store.ListRuns(c.Context(), id)
	if err != nil {
		return err
	}

	out := make([]runSummary, 0, len(runs))
	for _, r := range runs {
		out = append(out, runSummary{ID: r.ID, Created: r.Created, Value: runValue{Status: r.Status, Baseline: r.Baseline}})
	}

	return c.JSON(out)
}

func (s *Server) createRun(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req core.Run
	if err := decode(c, &req); err != nil {
		return err
	}

	run, err := s.store.CreateRun(c.Context(), id, req)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(run)
}

func (s *Server) getRun(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	run, err := s.store.GetRun(c.Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(run)
}

func (s *Server) setStatus(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var status core.RunStatus
	if err := decode(c, &status); err != nil {
		return err
	}

	run, err := s.store.SetStatus(c.Context(), id, status)
	if err != nil {
		return err
	}

	return c.JSON(run)
}

func (s *Server) setBaseline(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var baseline bool
	if err := decode(c, &baseline); err != nil {
		return err
	}

	run, err := s.store.SetBaseline(c.Context(), id, baseline)
	if err != nil {
		return err
	}

	return c.JSON(run)
}

func (s *Server) listJobs(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	if _, err := s.store.GetRun(c.Context(), id); err != nil {
		return err
	}

	jobs, err := s.store.ListJobs(c.Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(jobs)
}

func (s *Server) createJob(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req core.Job
	if err := decode(c, &req); err != nil {
		return err
	}

	job, err := s.store.CreateJob(c.Context(), id, req)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(job)
}

func (s *Server) getJob(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	job, err := s.store.GetJob(c.Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(job)
}

func (s *Server) listOutputs(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	if _, err := s.store.GetJob(c.Context(), id); err != nil {
		return err
	}

	outputs, err := s.store.ListOutputs(c.Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(outputs)
}

func (s *Server) addOutput(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	payload, err := payloadOf(c)
	if err != nil {
		return err
	}

	out, err := s.store.AddOutput(c.Context(), id, c.Params("op"), payload)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(out)
}

func (s *Server) getOutput(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	out, err := s.store.GetOutput(c.Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(out)
}

func (s *Server) outputText(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	text, err := s.store.OutputText(c.Context(), id)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)

	return c.Send(text)
}

func (s *Server) outputHdr(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	data, err := s.store.OutputHdr(c.Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(data)
}

func (s *Server) verifyOutput(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	v, err := s.store.VerifyOutput(c.Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(v)
}

func (s *Server) operations(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	ops, err := s.store.Operations(c.Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(ops)
}

func (s *Server) commonOperations(c fiber.Ctx) error {
	ids, err := parseIDs(c.Params("ids"))
	if err != nil {
		return err
	}

	ops, err := s.store.CommonOperations(c.Context(), ids)
	if err != nil {
		return err
	}

	return c.JSON(ops)
}

func (s *Server) aggregate(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	data, err := s.store.Aggregate(c.Context(), id, c.Params("op"))
	if err != nil {
		return err
	}

	return c.JSON(data)
}

func (s *Server) chart(format chart.Format) fiber.Handler {
	contentType := contentTypePNG
	if format == chart.SVG {
		contentType = contentTypeSVG
	}

	return func(c fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}

		kind, err := chart.ParseKind(c.Params("kind"))
		if err != nil {
			return err
		}

		op := c.Params("op")

		data, err := s.store.Aggregate(c.Context(), id, op)
		if err != nil {
			return err
		}

		canvas := chart.NewCanvas()
		target := chart.Target(op, kind)
		runs := []chart.Run{{Name: "run " + strconv.FormatInt(id, 10), Data: data}}

		if err := chart.Plot(canvas, kind, target, runs, true); err != nil {
			return err
		}

		var buf bytes.Buffer
		if err := canvas.Render(target, format, &buf); err != nil {
			return err
		}

		c.Set(fiber.HeaderContentType, contentType)

		return c.Send(buf.Bytes())
	}
}

func (s *Server) regression(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	threshold, err := strconv.ParseFloat(c.Params("threshold"), 64)
	if err != nil {
		return ewrap.Wrapf(sentinel.ErrInvalidArgument, "threshold %q", c.Params("threshold"))
	}

	report, err := s.store.Regression(c.Context(), id, threshold)
	if err != nil {
		return err
	}

	return c.JSON(report)
}

func (s *Server) listMonitorLogs(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	if _, err := s.store.GetRun(c.Context(), id); err != nil {
		return err
	}

	logs, err := s.store.ListMonitorLogs(c.Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(logs)
}

func (s *Server) addMonitorLog(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	payload, err := payloadOf(c)
	if err != nil {
		return err
	}

	m, err := s.store.AddMonitorLog(c.Context(), id, c.Params("host"), c.Params("type"), payload)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(m)
}

func (s *Server) monitorLogText(c fiber.Ctx) error {
	id, err := paramID(c, "id")
	if err != nil {
		return err
	}

	text, err := s.store.MonitorLogText(c.Context(), id)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextPlainCharsetUTF8)

	return c.Send(text)
}

func (s *Server) comparison(c fiber.Ctx) (*compare.Result, error) {
	ids, err := parseIDs(c.Params("ids"))
	if err != nil {
		return nil, err
	}

	return s.store.Compare(c.Context(), c.Params("op"), ids)
}

func (s *Server) compare(c fiber.Ctx) error {
	result, err := s.comparison(c)
	if err != nil {
		return err
	}

	return c.JSON(result)
}

func (s *Server) compareXLSX(c fiber.Ctx) error {
	result, err := s.comparison(c)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := compare.WriteXLSX(&buf, result); err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, contentTypeXLSX)
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="compare-`+c.Params("ids")+`.xlsx"`)

	return c.Send(buf.Bytes())
}
