package utils

//local stack
//docker run -p 6379:6379 -d redis
//docker run -p 6333:6333 -p 6334:6334 -v civicChunks:/qdrant/storage qdrant/qdrant
//ollama pull llama3.1 && ollama pull nomic-embed-text    (LLM_PROVIDER=ollama EMBEDDING_PROVIDER=ollama)
//CHUNK_STORE=sqlite runs without qdrant, the answer cache is off in that mode

//swagger init, general info lives on cmd/api/main.go
//swag init -g cmd/api/main.go --parseDependency --parseInternal --dir ./ --output ./cmd/api/docs
