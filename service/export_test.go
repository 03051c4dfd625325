package service

var ZoneName = zoneName
