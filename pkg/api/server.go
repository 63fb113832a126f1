// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
// Package api is the control socket of the daemon: JSON lines over a unix
// socket, one request and one response per connection.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"strings"
	"time"

	"tcmutarget/pkg/logger"
)

const requestTimeout = 30 * time.Second

type DemonApiServer struct {
	handler       *DemonApiHandler
	socketAddress string
}

func NewApiServer(handler *DemonApiHandler, socketAddress string) *DemonApiServer {
	return &DemonApiServer{
		handler:       handler,
		socketAddress: socketAddress,
	}
}

func (server *DemonApiServer) HandleConnection(ctx context.Context, connection net.Conn) {
	log := logger.GetLogger()
	defer func() {
		err := connection.Close()
		if err != nil {
			log.Warnf("can't close api connection: %s", err)
		}
	}()
	reader := bufio.NewReader(connection)
	delimiter := byte('\n')
	requestBytes, err := reader.ReadBytes(delimiter)
	if err != nil {
		log.Warnf("can't read api request: %s", err)
		return
	}
	request, err := ParseRequest(requestBytes[:len(requestBytes)-1])
	if err != nil {
		log.Warnf("malformed api request: %s", err)
		server.sendResponse(connection, ErrorResponse(err), delimiter)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	log.Debugf("api request %s", request.Type)
	response := server.handler.HandleRequest(ctx, request)
	if response.Error != "" {
		log.Infof("api request %s failed: %s", request.Type, response.Error)
	}
	server.sendResponse(connection, response, delimiter)
}

func (server *DemonApiServer) sendResponse(connection net.Conn, response Response, delimiter byte) {
	log := logger.GetLogger()
	response.Error = strings.ReplaceAll(response.Error, "\n", `\n`)
	result, err := json.Marshal(response)
	if err != nil {
		log.Errorf("can't encode api response: %s", err)
		return
	}
	_, err = connection.Write(append(result, delimiter))
	if err != nil {
		log.Warnf("can't send api response: %s", err)
	}
}

// Listen binds the socket, replacing a stale one.
func (server *DemonApiServer) Listen() (net.Listener, error) {
	if err := os.RemoveAll(server.socketAddress); err != nil {
		return nil, err
	}
	return net.Listen("unix", server.socketAddress)
}

// Serve accepts connections until ctx is cancelled.
func (server *DemonApiServer) Serve(ctx context.Context, listener net.Listener) error {
	log := logger.GetLogger()
	stop := context.AfterFunc(ctx, func() {
		if err := listener.Close(); err != nil {
			log.Warnf("can't close api listener: %s", err)
		}
	})
	defer stop()
	for {
		connection, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		go server.HandleConnection(ctx, connection)
	}
}

func (server *DemonApiServer) Run(ctx context.Context) error {
	listener, err := server.Listen()
	if err != nil {
		return err
	}
	logger.GetLogger().Infof("api listening on %s", server.socketAddress)
	return server.Serve(ctx, listener)
}
