package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/phuslu/log"
	"github.com/rs/cors"

	"github.com/recall-archive/recall/config"
	"github.com/recall-archive/recall/database"
	"github.com/recall-archive/recall/models"
	"github.com/recall-archive/recall/queue"
	"github.com/recall-archive/recall/services"
	"github.com/recall-archive/recall/store"
)

type app struct {
	cfg           *config.Config
	logger        log.Logger
	store         store.MediaStore
	retriever     *services.SimilarityRetriever
	transcription *services.TranscriptionService
	contextCache  *services.ConversationalContextCache
	tasks         *queue.Queue
}

func (a *app) uploadMedia(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(50 << 20); err != nil {
		http.Error(w, "Failed to parse upload: "+err.Error(), http.StatusBadRequest)
		return
	}

	file, handler, err := r.FormFile("media")
	if err != nil {
		http.Error(w, "Failed to upload file: "+err.Error(), http.StatusBadRequest)
		return
	}
	defer file.Close()

	if err := os.MkdirAll(a.cfg.Server.UploadsDir, 0o755); err != nil {
		http.Error(w, "Failed to create uploads directory", http.StatusInternalServerError)
		return
	}

	filePath := fmt.Sprintf("%s/%d_%s", a.cfg.Server.UploadsDir, time.Now().UnixNano(), handler.Filename)
	out, err := os.Create(filePath)
	if err != nil {
		http.Error(w, "Failed to save file: "+err.Error(), http.StatusInternalServerError)
		return
	}
	defer out.Close()
	if _, err := io.Copy(out, file); err != nil {
		http.Error(w, "Failed while copying file: "+err.Error(), http.StatusInternalServerError)
		return
	}

	record := &models.MediaRecord{
		ID:        uuid.NewString(),
		MediaType: models.MediaType(r.FormValue("media_type")),
		CreatedAt: time.Now(),
		FilePath:  filePath,
		Tags:      models.StringList{},
	}
	if record.MediaType != models.MediaTypeVideo {
		record.MediaType = models.MediaTypeImage
	}
	if lat, err := strconv.ParseFloat(r.FormValue("latitude"), 64); err == nil {
		record.Latitude = &lat
	}
	if lng, err := strconv.ParseFloat(r.FormValue("longitude"), 64); err == nil {
		record.Longitude = &lng
	}

	// Optional audio clip: transcribe and embed at ingestion time so the
	// record is searchable by what was said.
	if audioFile, _, err := r.FormFile("audio"); err == nil {
		defer audioFile.Close()
		audioBytes, err := io.ReadAll(audioFile)
		if err == nil && len(audioBytes) > 0 {
			audio := &models.AudioRecord{ID: uuid.NewString(), CreatedAt: time.Now()}
			if err := a.store.CreateAudio(r.Context(), audio); err != nil {
				http.Error(w, "Failed to save audio: "+err.Error(), http.StatusInternalServerError)
				return
			}
			transcript, embedding := a.transcription.TranscribeAndEmbed(r.Context(), audioBytes)
			if transcript != nil {
				if err := a.store.SetAudioTranscription(r.Context(), audio.ID, *transcript, embedding); err != nil {
					a.logger.Error().Err(err).Str("audio_id", audio.ID).Msg("failed to store transcription")
				}
			}
			record.AudioID = &audio.ID
		}
	}

	if err := a.store.CreateMedia(r.Context(), record); err != nil {
		http.Error(w, "Failed to save to database: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(record)
}

func (a *app) searchMedia(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query     string   `json:"query"`
		Threshold *float32 `json:"threshold"`
		TopK      int      `json:"top_k"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}

	threshold := a.cfg.Search.Threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	limit := req.TopK
	if limit <= 0 || limit > a.cfg.Search.Limit {
		limit = a.cfg.Search.Limit
	}

	matches, err := a.retriever.FindSimilar(r.Context(), req.Query, threshold, limit)
	if err != nil {
		http.Error(w, "Failed to search: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if matches == nil {
		matches = []services.Match{}
	}
	json.NewEncoder(w).Encode(matches)
}

func (a *app) findItem(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		http.Error(w, "query parameter is required", http.StatusBadRequest)
		return
	}

	matches, err := a.retriever.FindSimilar(r.Context(), query, a.cfg.Search.Threshold, 1)
	if err != nil {
		http.Error(w, "Failed to search: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if len(matches) == 0 {
		http.Error(w, fmt.Sprintf("I could not find your %s.", query), http.StatusNotFound)
		return
	}

	best := matches[0]
	description := ""
	if best.Record.Description != nil {
		description = *best.Record.Description
	}
	mediaWord := "photo"
	if best.Record.MediaType == models.MediaTypeVideo {
		mediaWord = "video"
	}
	json.NewEncoder(w).Encode(map[string]any{
		"message": fmt.Sprintf("I last saw your %s in a %s of a %s.", query, mediaWord, description),
		"media":   best.Record,
		"score":   best.Score,
	})
}

func (a *app) getContext(w http.ResponseWriter, r *http.Request) {
	digest, err := a.contextCache.GetContext(r.Context(), false)
	if err != nil {
		http.Error(w, "Failed to build context: "+err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"context": digest})
}

func (a *app) refreshContext(w http.ResponseWriter, r *http.Request) {
	if _, err := a.contextCache.GetContext(r.Context(), true); err != nil {
		http.Error(w, "Failed to refresh context: "+err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"message": "Context cache refreshed"})
}

func (a *app) reanalyzeMedia(w http.ResponseWriter, r *http.Request) {
	mediaID := mux.Vars(r)["id"]
	if _, err := a.store.GetByID(r.Context(), mediaID); err != nil {
		if err == store.ErrNotFound {
			http.Error(w, "Media not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to load media: "+err.Error(), http.StatusInternalServerError)
		return
	}

	taskID, err := a.tasks.Enqueue(r.Context(), queue.ReanalyzeQueue, queue.TaskTypeReanalyzeMedia,
		map[string]any{"media_id": mediaID})
	if err != nil {
		http.Error(w, "Failed to enqueue task: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"task_id": taskID})
}

func (a *app) taskStatus(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["id"]
	status, err := a.tasks.GetTaskStatus(r.Context(), taskID)
	if err != nil {
		http.Error(w, "Failed to get task status: "+err.Error(), http.StatusInternalServerError)
		return
	}
	result, err := a.tasks.GetTaskResult(r.Context(), taskID)
	if err != nil {
		http.Error(w, "Failed to get task result: "+err.Error(), http.StatusInternalServerError)
		return
	}
	json.NewEncoder(w).Encode(map[string]any{"task_id": taskID, "status": status, "result": result})
}

func healthz(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg.LogLevel)

	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("database connection failed")
	}
	mediaStore := store.NewGormStore(db, cfg.Worker.MaxAttempts)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	gemini, err := services.NewGeminiClient(ctx, cfg.Gemini)
	if err != nil {
		logger.Fatal().Err(err).Msg("gemini client initialization failed")
	}

	embedding := services.NewEmbeddingService(gemini, cfg.Gemini.EmbedDimensions, logger)
	transcription := services.NewTranscriptionService(gemini, embedding, logger)
	retriever := services.NewSimilarityRetriever(mediaStore, embedding, logger)
	contextCache := services.NewConversationalContextCache(mediaStore, cfg.Context, logger)

	tasks, err := queue.New(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer tasks.Close()

	a := &app{
		cfg:           cfg,
		logger:        logger,
		store:         mediaStore,
		retriever:     retriever,
		transcription: transcription,
		contextCache:  contextCache,
		tasks:         tasks,
	}

	r := mux.NewRouter()
	r.HandleFunc("/upload", a.uploadMedia).Methods("POST")
	r.HandleFunc("/search", a.searchMedia).Methods("POST")
	r.HandleFunc("/find", a.findItem).Methods("GET")
	r.HandleFunc("/context", a.getContext).Methods("GET")
	r.HandleFunc("/context/refresh", a.refreshContext).Methods("POST")
	r.HandleFunc("/media/{id}/reanalyze", a.reanalyzeMedia).Methods("POST")
	r.HandleFunc("/tasks/{id}", a.taskStatus).Methods("GET")
	r.HandleFunc("/healthz", healthz).Methods("GET")

	// Serve raw media from the uploads directory.
	fs := http.FileServer(http.Dir(a.cfg.Server.UploadsDir))
	r.PathPrefix("/uploads/").Handler(http.StripPrefix("/uploads/", fs))

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	server := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: c.Handler(r),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("server shutdown failed")
		}
	}()

	logger.Info().Str("addr", cfg.Server.Addr).Msg("server running")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("server failed")
	}
}
