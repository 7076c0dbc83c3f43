package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/GitDonce/TwoGuys/middleware"
)

// NewRouter wires every API route. The returned handler already carries CORS,
// panic recovery and request logging.
func NewRouter(h *Handlers, allowedOrigins []string) http.Handler {
	authMW := middleware.NewAuth(h.Tokens, h.Log)
	router := mux.NewRouter()
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, http.StatusNotFound, "Route not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	router.HandleFunc("/", h.Root).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", h.Health).Methods("GET")

	api.HandleFunc("/items", h.GetItems).Methods("GET")
	api.HandleFunc("/items", h.CreateItem).Methods("POST")
	api.HandleFunc("/items/{id}", h.GetItem).Methods("GET")
	api.HandleFunc("/items/{id}", h.UpdateItem).Methods("PUT")
	api.HandleFunc("/items/{id}", h.DeleteItem).Methods("DELETE")

	api.HandleFunc("/cities", h.GetCities).Methods("GET")
	api.Handle("/cities", authMW.Optional(http.HandlerFunc(h.CreateCity))).Methods("POST")
	api.HandleFunc("/cities/{id}", h.GetCity).Methods("GET")
	api.Handle("/cities/{id}", authMW.Optional(http.HandlerFunc(h.UpdateCity))).Methods("PUT")
	api.Handle("/cities/{id}", authMW.Optional(http.HandlerFunc(h.DeleteCity))).Methods("DELETE")

	api.HandleFunc("/auth/register", h.RegisterUser).Methods("POST")
	api.HandleFunc("/auth/login", h.LoginUser).Methods("POST")
	api.HandleFunc("/auth/logout", h.LogoutUser).Methods("POST")

	api.Handle("/user/cities", authMW.Require(http.HandlerFunc(h.GetUserCities))).Methods("GET")

	var handler http.Handler = router
	handler = middleware.RequestLogger(h.Log)(handler)
	handler = middleware.Recoverer(h.Log)(handler)
	handler = middleware.CORS(allowedOrigins)(handler)
	return handler
}
