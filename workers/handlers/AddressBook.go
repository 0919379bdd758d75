package handlers

import (
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"gococo/types"
)

func (a *API) AddressBook(w http.ResponseWriter, r *http.Request) {
	records, err := a.d.Store.ListAddressBook(a.d.Account.Hex())
	if err != nil {
		log.Printf("Error reading address book: %s", err.Error())
		responseJSON(w, &APIResponse{
			Status:  "error",
			Message: "Cannot read address book",
		}, http.StatusInternalServerError)
		return
	}
	responseJSON(w, records, http.StatusOK)
}

func (a *API) SaveAddressBook(w http.ResponseWriter, r *http.Request) {
	var req AddressBookRequest
	if !readJSON(w, r, &req) {
		return
	}

	if _, ok := a.d.Chains[req.ChainID]; !ok {
		responseError(w, fmt.Errorf("%w: chain %d is not configured", types.ErrConfiguration, req.ChainID), "chainId")
		return
	}
	address, err := parseAddress("address", req.Address)
	if err != nil {
		responseError(w, err, "address")
		return
	}

	rec := &types.AddressBookRecord{
		Owner:   a.d.Account.Hex(),
		Name:    req.Name,
		ChainID: req.ChainID,
		Address: address.Hex(),
	}
	if err := a.d.Store.UpsertAddressBookRecord(rec); err != nil {
		log.Printf("Error saving address book record: %s", err.Error())
		if types.ErrorKind(err) == "config" {
			responseError(w, err, "name")
			return
		}
		responseJSON(w, &APIResponse{
			Status:  "error",
			Message: "Cannot save address book record",
		}, http.StatusInternalServerError)
		return
	}
	responseJSON(w, rec, http.StatusOK)
}
