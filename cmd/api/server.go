package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"kivaquery"
	"kivaquery/kiva"
)

const defaultPageLimit = 50
const maxPageLimit = 500

type Server struct {
	repo   kivaquery.LoanRepository
	logger *zap.Logger
}

func NewServer(repo kivaquery.LoanRepository, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{repo: repo, logger: logger}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("unable to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int) {
	s.writeJSON(w, status, map[string]string{"error": http.StatusText(status)})
}

func (s *Server) Index(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("kivaquery api"))
}

func (s *Server) GetSample(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(kiva.SampleLoansJSON())
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}

	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, errors.New("invalid " + name)
	}

	return n, nil
}

func (s *Server) ListLoans(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultPageLimit)
	if err != nil || limit == 0 {
		s.writeError(w, http.StatusBadRequest)
		return
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		s.writeError(w, http.StatusBadRequest)
		return
	}

	loans, err := s.repo.ListLoans(r.Context(), limit, offset)
	if err != nil {
		s.logger.Error("unable to list loans", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"loans": loans})
}

func loanIdParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "loanId"), 10, 64)
}

func (s *Server) GetLoan(w http.ResponseWriter, r *http.Request) {
	id, err := loanIdParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest)
		return
	}

	loan, err := s.repo.GetLoan(r.Context(), id)
	if errors.Is(err, kivaquery.LoanNotFoundError) {
		s.writeError(w, http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("unable to get loan", zap.Int64("loan_id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, http.StatusOK, loan)
}

func (s *Server) GetLoanPayments(w http.ResponseWriter, r *http.Request) {
	id, err := loanIdParam(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest)
		return
	}

	if _, err := s.repo.GetLoan(r.Context(), id); err != nil {
		if errors.Is(err, kivaquery.LoanNotFoundError) {
			s.writeError(w, http.StatusNotFound)
			return
		}
		s.logger.Error("unable to get loan", zap.Int64("loan_id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError)
		return
	}

	payments, err := s.repo.GetLoanPayments(r.Context(), id)
	if err != nil {
		s.logger.Error("unable to get loan payments", zap.Int64("loan_id", id), zap.Error(err))
		s.writeError(w, http.StatusInternalServerError)
		return
	}
	if payments == nil {
		payments = []kiva.Payment{}
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"payments": payments})
}
